package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/backend-kasir/internal/coupon"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/rental"
)

func newTestService(store *db.Mem) *Service {
	rentals := rental.NewService(store, nil, 100, 7*24*time.Hour)
	svc := NewService(store, nil, rentals, 600, "USD")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }
	rentals.Now = svc.Now
	store.Now = svc.Now
	return svc
}

func seedItem(t *testing.T, store *db.Mem, sku, kind string, price int64, qty int32) db.Item {
	t.Helper()
	item, err := store.InsertItem(context.Background(), db.InsertItemParams{
		SKU:        sku,
		Name:       "test " + sku,
		PriceCents: price,
		Quantity:   qty,
		Kind:       kind,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
	return item
}

func seedCoupon(t *testing.T, store *db.Mem, code string, percentBps int32, maxUses *int32) db.Coupon {
	t.Helper()
	c, err := store.InsertCoupon(context.Background(), db.InsertCouponParams{
		Code:       code,
		PercentBps: &percentBps,
		MaxUses:    maxUses,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("seed coupon %s: %v", code, err)
	}
	return c
}

func saleInput(lines []LineInput, couponCode *string, tendered int64) Input {
	return Input{
		Type:       db.TxTypeSale,
		EmployeeID: "emp-1",
		Lines:      lines,
		CouponCode: couponCode,
		Payment:    Payment{Method: db.PaymentCash, Tendered: tendered},
	}
}

func TestCreateSaleWithCouponAndTax(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	seedCoupon(t, store, "SAVE10", 1000, nil)
	svc := newTestService(store)

	code := "SAVE10"
	receipt, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 2}}, &code, 2000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if receipt.SubtotalCents != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", receipt.SubtotalCents)
	}
	if receipt.DiscountCents != 200 {
		t.Fatalf("expected discount 200, got %d", receipt.DiscountCents)
	}
	if receipt.TaxCents != 108 {
		t.Fatalf("expected tax 108, got %d", receipt.TaxCents)
	}
	if receipt.TotalCents != 1908 {
		t.Fatalf("expected total 1908, got %d", receipt.TotalCents)
	}
	if receipt.ChangeCents != 92 {
		t.Fatalf("expected change 92, got %d", receipt.ChangeCents)
	}
	if receipt.Number != "20260301-0001" {
		t.Fatalf("expected number 20260301-0001, got %s", receipt.Number)
	}

	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", item.Quantity)
	}
	c, _ := store.GetCouponByCode(ctx, "SAVE10")
	if c.TimesUsed != 1 {
		t.Fatalf("expected coupon used once, got %d", c.TimesUsed)
	}
}

func TestCreateNumbersIncrementWithinDay(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	for i, want := range []string{"20260301-0001", "20260301-0002"} {
		receipt, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 1}}, nil, 2000))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if receipt.Number != want {
			t.Fatalf("expected %s, got %s", want, receipt.Number)
		}
	}
}

func TestCreateFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "A", db.ItemKindSale, 1000, 10)
	seedItem(t, store, "B", db.ItemKindSale, 1000, 1)
	seedCoupon(t, store, "SAVE10", 1000, nil)
	svc := newTestService(store)

	code := "SAVE10"
	_, err := svc.Create(ctx, saleInput([]LineInput{
		{SKU: "A", Quantity: 2},
		{SKU: "B", Quantity: 5},
	}, &code, 100_000))
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	itemA, _ := store.GetItemBySKU(ctx, "A")
	if itemA.Quantity != 10 {
		t.Fatalf("expected A stock untouched at 10, got %d", itemA.Quantity)
	}
	c, _ := store.GetCouponByCode(ctx, "SAVE10")
	if c.TimesUsed != 0 {
		t.Fatalf("expected no coupon use consumed, got %d", c.TimesUsed)
	}
	if _, err := store.GetTransactionByNumber(ctx, "20260301-0001"); err == nil {
		t.Fatal("expected no transaction persisted")
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "HOT", db.ItemKindSale, 1000, 5)
	svc := newTestService(store)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Create(ctx, saleInput([]LineInput{{SKU: "HOT", Quantity: 3}}, nil, 10_000))
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			if !errors.Is(err, inventory.ErrInsufficientStock) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one sale to fail, got %d", failures)
	}
	item, _ := store.GetItemBySKU(ctx, "HOT")
	if item.Quantity != 2 {
		t.Fatalf("expected final stock 2, got %d", item.Quantity)
	}
}

func TestDuplicateTransactionNumberRejected(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	// Occupy the number the next sale will draw.
	if _, err := store.InsertTransaction(ctx, db.InsertTransactionParams{
		Number:        "20260301-0001",
		Type:          db.TxTypeSale,
		EmployeeID:    "emp-0",
		SubtotalCents: 500,
		TotalCents:    530,
		PaymentMethod: db.PaymentCash,
		TenderedCents: 600,
		ChangeCents:   70,
	}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	_, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 2}}, nil, 3000))
	if !errors.Is(err, db.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 10 {
		t.Fatalf("expected stock rolled back to 10, got %d", item.Quantity)
	}
	existing, err := store.GetTransactionByNumber(ctx, "20260301-0001")
	if err != nil {
		t.Fatalf("load existing: %v", err)
	}
	if existing.TotalCents != 530 || existing.EmployeeID != "emp-0" {
		t.Fatalf("existing transaction was overwritten: %+v", existing)
	}
}

func TestCouponExhaustionAcrossSales(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	one := int32(1)
	seedCoupon(t, store, "ONCE", 1000, &one)
	svc := newTestService(store)

	code := "ONCE"
	if _, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 1}}, &code, 2000)); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	_, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 1}}, &code, 2000))
	if !errors.Is(err, coupon.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestConcurrentSalesRaceForLastCouponUse(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	one := int32(1)
	seedCoupon(t, store, "ONCE", 1000, &one)
	svc := newTestService(store)

	code := "ONCE"
	var wg sync.WaitGroup
	results := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 1}}, &code, 2000))
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range results {
		if err != nil {
			if !errors.Is(err, coupon.ErrExhausted) {
				t.Fatalf("unexpected error: %v", err)
			}
			failures++
		}
	}
	if failures != len(results)-1 {
		t.Fatalf("expected exactly one sale to win the coupon, got %d failures", failures)
	}
	c, err := store.GetCouponByCode(ctx, "ONCE")
	if err != nil {
		t.Fatalf("load coupon: %v", err)
	}
	if c.TimesUsed != 1 {
		t.Fatalf("expected times_used 1, got %d", c.TimesUsed)
	}
	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 9 {
		t.Fatalf("expected stock 9 after the single winning sale, got %d", item.Quantity)
	}
}

func TestInsufficientCashRejected(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	_, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 2}}, nil, 100))
	if !errors.Is(err, pricing.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 10 {
		t.Fatalf("expected stock untouched, got %d", item.Quantity)
	}
}

func TestCreateRentalOpensRentalRows(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "DRILL", db.ItemKindRental, 1500, 3)
	svc := newTestService(store)

	customer := "cust-9"
	receipt, err := svc.CreateRental(ctx, Input{
		EmployeeID: "emp-1",
		CustomerID: &customer,
		Lines:      []LineInput{{SKU: "DRILL", Quantity: 1}},
		Payment:    Payment{Method: db.PaymentCredit},
	})
	if err != nil {
		t.Fatalf("rental: %v", err)
	}
	if len(receipt.Rentals) != 1 {
		t.Fatalf("expected 1 rental on receipt, got %d", len(receipt.Rentals))
	}
	wantDue := svc.Now().Add(7 * 24 * time.Hour)
	if !receipt.Rentals[0].DueDate.Equal(wantDue) {
		t.Fatalf("expected due %v, got %v", wantDue, receipt.Rentals[0].DueDate)
	}
	active, err := store.ListActiveRentals(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active rental, got %d", len(active))
	}
}

func TestCreateRentalRequiresCustomer(t *testing.T) {
	store := db.NewMem()
	seedItem(t, store, "DRILL", db.ItemKindRental, 1500, 3)
	svc := newTestService(store)

	_, err := svc.CreateRental(context.Background(), Input{
		EmployeeID: "emp-1",
		Lines:      []LineInput{{SKU: "DRILL", Quantity: 1}},
		Payment:    Payment{Method: db.PaymentCredit},
	})
	if !errors.Is(err, ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got %v", err)
	}
}

func TestCreateRentalRejectsNonRentableItem(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	customer := "cust-9"
	_, err := svc.CreateRental(ctx, Input{
		EmployeeID: "emp-1",
		CustomerID: &customer,
		Lines:      []LineInput{{SKU: "MUG", Quantity: 1}},
		Payment:    Payment{Method: db.PaymentCredit},
	})
	if !errors.Is(err, ErrNotRentable) {
		t.Fatalf("expected ErrNotRentable, got %v", err)
	}
	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 10 {
		t.Fatalf("expected stock rolled back to 10, got %d", item.Quantity)
	}
}

func TestCreateReturnRestocks(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	receipt, err := svc.CreateReturn(ctx, Input{
		EmployeeID: "emp-1",
		Lines:      []LineInput{{SKU: "MUG", Quantity: 2}},
		Payment:    Payment{Method: db.PaymentCash},
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if receipt.Type != db.TxTypeReturn {
		t.Fatalf("expected return type, got %s", receipt.Type)
	}
	item, _ := store.GetItemBySKU(ctx, "MUG")
	if item.Quantity != 12 {
		t.Fatalf("expected stock 12 after return, got %d", item.Quantity)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(db.NewMem())
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Type: "swap", EmployeeID: "e", Lines: []LineInput{{SKU: "A", Quantity: 1}}, Payment: Payment{Method: db.PaymentCash}})
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	_, err = svc.Create(ctx, saleInput(nil, nil, 0))
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	_, err = svc.Create(ctx, saleInput([]LineInput{{SKU: "A", Quantity: 0}}, nil, 0))
	if !errors.Is(err, pricing.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	in := saleInput([]LineInput{{SKU: "A", Quantity: 1}}, nil, 0)
	in.Payment.Method = "barter"
	_, err = svc.Create(ctx, in)
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment, got %v", err)
	}
}

func TestGetByNumber(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	created, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 2}}, nil, 3000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(ctx, created.Number)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalCents != created.TotalCents || len(got.Lines) != 1 {
		t.Fatalf("unexpected receipt: %+v", got)
	}
	if _, err := svc.Get(ctx, "20990101-0001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDailyReport(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	seedItem(t, store, "MUG", db.ItemKindSale, 1000, 10)
	svc := newTestService(store)

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, saleInput([]LineInput{{SKU: "MUG", Quantity: 1}}, nil, 2000)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	report, err := svc.Report(ctx, svc.Now())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Transactions != 3 {
		t.Fatalf("expected 3 transactions, got %d", report.Transactions)
	}
	if report.TotalCents != 3*1060 {
		t.Fatalf("expected total %d, got %d", 3*1060, report.TotalCents)
	}
}
