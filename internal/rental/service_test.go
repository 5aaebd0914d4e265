package rental

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedRental(t *testing.T, store *db.Mem, due time.Time, qty int32) (db.Rental, db.Item) {
	t.Helper()
	ctx := context.Background()
	item, err := store.InsertItem(ctx, db.InsertItemParams{
		SKU:        "DRILL",
		Name:       "power drill",
		PriceCents: 1500,
		Quantity:   0, // already checked out
		Kind:       db.ItemKindRental,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	var row db.Rental
	err = store.ExecTx(ctx, func(q db.Querier) error {
		var err error
		row, err = CheckOut(ctx, q, CheckOutParams{
			TransactionID: common.NewUUID(),
			CustomerID:    "cust-1",
			Item:          item,
			Quantity:      qty,
			RentalDate:    due.Add(-7 * 24 * time.Hour),
			DueDate:       due,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed rental: %v", err)
	}
	return row, item
}

func TestLateDays(t *testing.T) {
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		returned time.Time
		want     int64
	}{
		{"early", due.Add(-48 * time.Hour), 0},
		{"on time", due, 0},
		{"partial day", due.Add(6 * time.Hour), 0},
		{"one day", due.Add(25 * time.Hour), 1},
		{"three days", due.Add(3 * 24 * time.Hour), 3},
	}
	for _, tc := range cases {
		if got := LateDays(due, tc.returned); got != tc.want {
			t.Fatalf("%s: expected %d days, got %d", tc.name, tc.want, got)
		}
	}
}

func TestReturnOnTime(t *testing.T) {
	store := db.NewMem()
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, item := seedRental(t, store, due, 1)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	svc.Now = fixedClock(due.Add(-time.Hour))

	receipt, err := svc.Return(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if receipt.LateFee != 0 {
		t.Fatalf("expected no late fee, got %d", receipt.LateFee)
	}
	if !receipt.Rental.Returned {
		t.Fatal("expected rental marked returned")
	}
	got, err := store.GetItemBySKU(context.Background(), item.SKU)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Quantity != 1 {
		t.Fatalf("expected item restocked to 1, got %d", got.Quantity)
	}
}

func TestReturnLateChargesPerFullDay(t *testing.T) {
	store := db.NewMem()
	// Rented day 1 with a 7 day term, returned day 10: three days late.
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, _ := seedRental(t, store, due, 1)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	svc.Now = fixedClock(due.Add(3 * 24 * time.Hour))

	receipt, err := svc.Return(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if receipt.Days != 3 {
		t.Fatalf("expected 3 late days, got %d", receipt.Days)
	}
	if receipt.LateFee != 300 {
		t.Fatalf("expected 300 cents late fee, got %d", receipt.LateFee)
	}
}

func TestDoubleReturnRejected(t *testing.T) {
	store := db.NewMem()
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, item := seedRental(t, store, due, 2)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	svc.Now = fixedClock(due)

	if _, err := svc.Return(context.Background(), row.ID); err != nil {
		t.Fatalf("first return: %v", err)
	}
	if _, err := svc.Return(context.Background(), row.ID); !errors.Is(err, ErrAlreadyReturned) {
		t.Fatalf("expected ErrAlreadyReturned, got %v", err)
	}
	// Stock must not be credited twice.
	got, err := store.GetItemBySKU(context.Background(), item.SKU)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Quantity != 2 {
		t.Fatalf("expected stock 2, got %d", got.Quantity)
	}
}

func TestReturnUnknownRental(t *testing.T) {
	svc := NewService(db.NewMem(), nil, 100, 7*24*time.Hour)
	if _, err := svc.Return(context.Background(), common.NewUUID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtendPushesDueDate(t *testing.T) {
	store := db.NewMem()
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, _ := seedRental(t, store, due, 1)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	updated, err := svc.Extend(context.Background(), row.ID, 3)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	want := due.Add(3 * 24 * time.Hour)
	if !updated.DueDate.Equal(want) {
		t.Fatalf("expected due %v, got %v", want, updated.DueDate)
	}
}

func TestExtendReturnedRentalRejected(t *testing.T) {
	store := db.NewMem()
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, _ := seedRental(t, store, due, 1)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	svc.Now = fixedClock(due)
	if _, err := svc.Return(context.Background(), row.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := svc.Extend(context.Background(), row.ID, 3); !errors.Is(err, ErrAlreadyReturned) {
		t.Fatalf("expected ErrAlreadyReturned, got %v", err)
	}
}

func TestListOverdue(t *testing.T) {
	store := db.NewMem()
	due := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	row, _ := seedRental(t, store, due, 1)

	svc := NewService(store, nil, 100, 7*24*time.Hour)
	svc.Now = fixedClock(due.Add(48 * time.Hour))

	overdue, err := svc.ListOverdue(context.Background())
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || !common.UUIDEqual(overdue[0].ID, row.ID) {
		t.Fatalf("expected the seeded rental to be overdue, got %v", overdue)
	}
}
