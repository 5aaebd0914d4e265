package pricing

import "errors"

// Money represents a monetary value stored in minor units.
type Money = int64

var (
	// ErrEmptyCart is returned when a pricing request carries no lines.
	ErrEmptyCart = errors.New("pricing: empty cart")
	// ErrInvalidQuantity is returned when a line quantity is zero or negative.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
	// ErrInsufficientPayment is returned when the tendered cash does not
	// cover the total due.
	ErrInsufficientPayment = errors.New("pricing: insufficient payment")
)

// Line describes a priced line used for totals calculation.
type Line struct {
	Qty       int32
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money
	Discount Money
	Tax      Money
	Total    Money
}

// Compute calculates cart totals. The discount is clamped to the subtotal,
// tax applies to the post-discount amount and rounds half up.
func Compute(lines []Line, discount Money, taxBps int) (Summary, error) {
	if len(lines) == 0 {
		return Summary{}, ErrEmptyCart
	}
	var subtotal Money
	for _, l := range lines {
		if l.Qty <= 0 {
			return Summary{}, ErrInvalidQuantity
		}
		subtotal += Money(l.Qty) * l.UnitPrice
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	taxable := subtotal - discount
	tax := roundHalfUpBps(taxable, taxBps)
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable + tax,
	}, nil
}

// CashChange verifies the tendered amount covers the total and returns the
// change owed.
func CashChange(total, tendered Money) (Money, error) {
	if tendered < total {
		return 0, ErrInsufficientPayment
	}
	return tendered - total, nil
}

// roundHalfUpBps applies a basis-point rate to an amount, rounding the
// half cent up. 800 bps on 1908 cents yields 153, not 152.
func roundHalfUpBps(amount Money, bps int) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*Money(bps) + 5000) / 10000
}
