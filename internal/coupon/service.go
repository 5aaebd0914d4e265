package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// Evaluation carries the resolved coupon and the discount it grants.
type Evaluation struct {
	Coupon   db.Coupon
	Discount int64
}

// RuleFromRow adapts a stored coupon into an engine rule.
func RuleFromRow(c db.Coupon) Rule {
	return Rule{
		Code:        c.Code,
		PercentBps:  c.PercentBps,
		AmountCents: c.AmountCents,
		MinPurchase: c.MinPurchaseCents,
		MaxUses:     c.MaxUses,
		TimesUsed:   c.TimesUsed,
		Active:      c.Active,
		ExpiresAt:   c.ExpiresAt,
	}
}

// Evaluate resolves a coupon code and validates it against the subtotal.
// When forUpdate is true, the coupon row is locked so concurrent redemptions
// serialise on the usage counter. Codes match case-sensitively.
func Evaluate(ctx context.Context, q db.Querier, code string, subtotal int64, now time.Time, forUpdate bool) (Evaluation, error) {
	var (
		row db.Coupon
		err error
	)
	if forUpdate {
		row, err = q.GetCouponByCodeForUpdate(ctx, code)
	} else {
		row, err = q.GetCouponByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, ErrNotFound
		}
		return Evaluation{}, err
	}
	rule := RuleFromRow(row)
	if err := rule.Validate(now, subtotal); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Coupon: row, Discount: rule.Discount(subtotal)}, nil
}

// Settle records a redemption. Callers invoke it inside the same atomic
// unit as the sale, after every other step has succeeded, so an aborted
// sale never consumes a use.
func Settle(ctx context.Context, q db.Querier, id pgtype.UUID) error {
	return q.IncrementCouponUsage(ctx, id)
}

// Service exposes coupon previews and administration over the store.
type Service struct {
	Store db.Store
	Now   func() time.Time
}

// NewService wires a coupon service; Now defaults to time.Now.
func NewService(store db.Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Preview validates a code against a hypothetical subtotal without locking
// or consuming a use.
func (s *Service) Preview(ctx context.Context, code string, subtotal int64) (Evaluation, error) {
	return Evaluate(ctx, s.Store, code, subtotal, s.Now(), false)
}

// CreateParams describes a new coupon.
type CreateParams struct {
	Code        string
	Description *string
	PercentBps  *int32
	AmountCents *int64
	MinPurchase int64
	MaxUses     *int32
	ExpiresAt   *time.Time
}

// Create registers a coupon. The code must be unique.
func (s *Service) Create(ctx context.Context, p CreateParams) (db.Coupon, error) {
	return s.Store.InsertCoupon(ctx, db.InsertCouponParams{
		Code:             p.Code,
		Description:      p.Description,
		PercentBps:       p.PercentBps,
		AmountCents:      p.AmountCents,
		MinPurchaseCents: p.MinPurchase,
		MaxUses:          p.MaxUses,
		Active:           true,
		ExpiresAt:        p.ExpiresAt,
	})
}
