package coupon

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no coupon exists for the given code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been disabled.
	ErrInactive = errors.New("coupon not active")
	// ErrExpired is returned when the coupon expiry has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted indicates the coupon has consumed its usage quota.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet indicates the purchase subtotal is below the coupon requirement.
	ErrMinimumNotMet = errors.New("coupon minimum purchase not met")
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code        string
	PercentBps  *int32
	AmountCents *int64
	MinPurchase int64
	MaxUses     *int32
	TimesUsed   int32
	Active      bool
	ExpiresAt   *time.Time
}

// Validate ensures the rule can be applied at the provided instant and
// purchase subtotal. Checks run in a fixed order so callers get a stable
// first failure.
func (r Rule) Validate(now time.Time, subtotal int64) error {
	if !r.Active {
		return ErrInactive
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return ErrExpired
	}
	if r.MaxUses != nil && *r.MaxUses >= 0 && r.TimesUsed >= *r.MaxUses {
		return ErrExhausted
	}
	if subtotal < r.MinPurchase {
		return ErrMinimumNotMet
	}
	return nil
}

// Discount determines the discount amount for the subtotal. Percent rules
// take precedence when both kinds are set; the result never exceeds the
// subtotal.
func (r Rule) Discount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch {
	case r.PercentBps != nil && *r.PercentBps > 0:
		discount = (subtotal * int64(*r.PercentBps)) / 10000
	case r.AmountCents != nil && *r.AmountCents > 0:
		discount = *r.AmountCents
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
