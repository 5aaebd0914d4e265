package pricing

import (
	"errors"
	"testing"
)

func TestComputeWithDiscountAndTax(t *testing.T) {
	lines := []Line{
		{Qty: 2, UnitPrice: 1000},
	}
	// 10% off 2000 leaves 1800, 6% tax adds 108.
	sum, err := Compute(lines, 200, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Subtotal != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", sum.Subtotal)
	}
	if sum.Discount != 200 {
		t.Fatalf("expected discount 200, got %d", sum.Discount)
	}
	if sum.Tax != 108 {
		t.Fatalf("expected tax 108, got %d", sum.Tax)
	}
	if sum.Total != 1908 {
		t.Fatalf("expected total 1908, got %d", sum.Total)
	}
}

func TestComputeEmptyCart(t *testing.T) {
	_, err := Compute(nil, 0, 800)
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestComputeRejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []int32{0, -1} {
		_, err := Compute([]Line{{Qty: qty, UnitPrice: 500}}, 0, 800)
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestComputeClampsDiscountToSubtotal(t *testing.T) {
	sum, err := Compute([]Line{{Qty: 1, UnitPrice: 500}}, 10_000, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Discount != 500 {
		t.Fatalf("expected discount clamped to 500, got %d", sum.Discount)
	}
	if sum.Tax != 0 || sum.Total != 0 {
		t.Fatalf("expected zero tax and total, got tax=%d total=%d", sum.Tax, sum.Total)
	}
}

func TestComputeRoundsTaxHalfUp(t *testing.T) {
	// 1234 * 8% = 98.72, rounds to 99.
	sum, err := Compute([]Line{{Qty: 1, UnitPrice: 1234}}, 0, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Tax != 99 {
		t.Fatalf("expected tax 99, got %d", sum.Tax)
	}
	// 625 * 8% = 50.00 exactly.
	sum, err = Compute([]Line{{Qty: 1, UnitPrice: 625}}, 0, 800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Tax != 50 {
		t.Fatalf("expected tax 50, got %d", sum.Tax)
	}
}

func TestCashChange(t *testing.T) {
	change, err := CashChange(1908, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if change != 92 {
		t.Fatalf("expected change 92, got %d", change)
	}
	if _, err := CashChange(1908, 1900); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if change, err := CashChange(1908, 1908); err != nil || change != 0 {
		t.Fatalf("expected exact payment to yield zero change, got %d, %v", change, err)
	}
}
