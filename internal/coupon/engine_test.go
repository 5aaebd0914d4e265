package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noah-isme/backend-kasir/internal/db"
)

func TestRuleValidateOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	maxUses := int32(5)

	cases := []struct {
		name string
		rule Rule
		want error
	}{
		{"inactive", Rule{Active: false}, ErrInactive},
		{"expired", Rule{Active: true, ExpiresAt: &past}, ErrExpired},
		{"exhausted", Rule{Active: true, MaxUses: &maxUses, TimesUsed: 5}, ErrExhausted},
		{"minimum", Rule{Active: true, MinPurchase: 10_000}, ErrMinimumNotMet},
		{"ok", Rule{Active: true}, nil},
	}
	for _, tc := range cases {
		if err := tc.rule.Validate(now, 5_000); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRuleDiscountPercent(t *testing.T) {
	bps := int32(1000)
	rule := Rule{Active: true, PercentBps: &bps}
	if got := rule.Discount(2000); got != 200 {
		t.Fatalf("expected 200 discount, got %d", got)
	}
}

func TestRuleDiscountFixedClamped(t *testing.T) {
	amount := int64(5_000)
	rule := Rule{Active: true, AmountCents: &amount}
	if got := rule.Discount(3_000); got != 3_000 {
		t.Fatalf("expected discount clamped to 3000, got %d", got)
	}
}

func TestEvaluateUnknownCode(t *testing.T) {
	store := db.NewMem()
	_, err := Evaluate(context.Background(), store, "NOPE", 1000, time.Now(), false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluateExhaustionUnderSettle(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	bps := int32(1000)
	maxUses := int32(1)
	created, err := store.InsertCoupon(ctx, db.InsertCouponParams{
		Code:       "ONCE",
		PercentBps: &bps,
		MaxUses:    &maxUses,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("insert coupon: %v", err)
	}

	ev, err := Evaluate(ctx, store, "ONCE", 2000, time.Now(), true)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if ev.Discount != 200 {
		t.Fatalf("expected 200 discount, got %d", ev.Discount)
	}
	if err := Settle(ctx, store, created.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := Evaluate(ctx, store, "ONCE", 2000, time.Now(), true); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted after settle, got %v", err)
	}
}

func TestServicePreviewDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	store := db.NewMem()
	svc := NewService(store)
	amount := int64(500)
	maxUses := int32(1)
	if _, err := svc.Create(ctx, CreateParams{Code: "FLAT5", AmountCents: &amount, MaxUses: &maxUses}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		ev, err := svc.Preview(ctx, "FLAT5", 2000)
		if err != nil {
			t.Fatalf("preview %d: %v", i, err)
		}
		if ev.Discount != 500 {
			t.Fatalf("expected 500 discount, got %d", ev.Discount)
		}
	}
}
