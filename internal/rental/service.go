package rental

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/obs"
)

var (
	// ErrNotFound is returned when no rental exists for the given id.
	ErrNotFound = errors.New("rental not found")
	// ErrAlreadyReturned is returned when a rental has already been
	// checked in.
	ErrAlreadyReturned = errors.New("rental already returned")
)

// Service manages the rental lifecycle: check-out rows are created by the
// transaction flow, check-in and extension run here.
type Service struct {
	Store         db.Store
	Bus           *events.Bus
	LateFeePerDay int64
	Duration      time.Duration
	Now           func() time.Time
}

// NewService wires a rental service with the configured late fee rate and
// default rental duration.
func NewService(store db.Store, bus *events.Bus, lateFeePerDay int64, duration time.Duration) *Service {
	return &Service{
		Store:         store,
		Bus:           bus,
		LateFeePerDay: lateFeePerDay,
		Duration:      duration,
		Now:           time.Now,
	}
}

// DueDate derives the due date from the rental date and the configured
// duration.
func (s *Service) DueDate(rentalDate time.Time) time.Time {
	return rentalDate.Add(s.Duration)
}

// LateDays counts full days past due. A return before or on the due
// instant, or within the first partial day after, counts zero.
func LateDays(due, returned time.Time) int64 {
	if !returned.After(due) {
		return 0
	}
	return int64(returned.Sub(due) / (24 * time.Hour))
}

// LateFee charges per full day past due.
func LateFee(due, returned time.Time, perDay int64) int64 {
	return LateDays(due, returned) * perDay
}

// CheckOutParams describes a rental row created alongside a transaction.
type CheckOutParams struct {
	TransactionID pgtype.UUID
	CustomerID    string
	Item          db.Item
	Quantity      int32
	RentalDate    time.Time
	DueDate       time.Time
	Notes         *string
}

// CheckOut persists a rental inside the caller's atomic unit. Stock for the
// rented item has already been reserved by the same unit.
func CheckOut(ctx context.Context, q db.Querier, p CheckOutParams) (db.Rental, error) {
	return q.InsertRental(ctx, db.InsertRentalParams{
		TransactionID: p.TransactionID,
		CustomerID:    p.CustomerID,
		ItemID:        p.Item.ID,
		Quantity:      p.Quantity,
		PriceCents:    p.Item.PriceCents,
		RentalDate:    p.RentalDate,
		DueDate:       p.DueDate,
		Notes:         p.Notes,
	})
}

// Receipt reports the outcome of a check-in.
type Receipt struct {
	Rental  db.Rental
	LateFee int64
	Days    int64
}

// Return checks a rental back in: the row is locked, marked returned with
// the computed late fee, and the item restocked, all in one atomic unit.
// A second return of the same rental fails with ErrAlreadyReturned and
// changes nothing.
func (s *Service) Return(ctx context.Context, id pgtype.UUID) (Receipt, error) {
	now := s.Now()
	var receipt Receipt
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		row, err := q.GetRentalForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if row.Returned {
			return ErrAlreadyReturned
		}
		days := LateDays(row.DueDate, now)
		fee := days * s.LateFeePerDay
		if err := q.MarkRentalReturned(ctx, db.MarkRentalReturnedParams{
			ID:           row.ID,
			ReturnDate:   now,
			LateFeeCents: fee,
		}); err != nil {
			return err
		}
		if _, err := q.IncrementItemStock(ctx, db.AdjustStockParams{ID: row.ItemID, Quantity: row.Quantity}); err != nil {
			return err
		}
		row.Returned = true
		row.ReturnDate = &now
		row.LateFeeCents = fee
		receipt = Receipt{Rental: row, LateFee: fee, Days: days}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	if obs.LateFeeCentsTotal != nil && receipt.LateFee > 0 {
		obs.LateFeeCentsTotal.Add(float64(receipt.LateFee))
	}
	s.emit(ctx, events.TopicRentalReturned, receipt.Rental.ID, map[string]any{
		"rentalId":     common.UUIDString(receipt.Rental.ID),
		"lateFeeCents": receipt.LateFee,
		"returnedAt":   now,
	})
	return receipt, nil
}

// Extend pushes the due date out by the given number of days. Returned
// rentals cannot be extended.
func (s *Service) Extend(ctx context.Context, id pgtype.UUID, days int) (db.Rental, error) {
	var updated db.Rental
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		row, err := q.GetRentalForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if row.Returned {
			return ErrAlreadyReturned
		}
		due := row.DueDate.Add(time.Duration(days) * 24 * time.Hour)
		if err := q.ExtendRentalDue(ctx, db.ExtendRentalDueParams{ID: row.ID, DueDate: due}); err != nil {
			return err
		}
		row.DueDate = due
		updated = row
		return nil
	})
	return updated, err
}

// Get fetches a single rental.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (db.Rental, error) {
	row, err := s.Store.GetRental(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.Rental{}, ErrNotFound
	}
	return row, err
}

// ListActive returns rentals that have not been checked in yet.
func (s *Service) ListActive(ctx context.Context) ([]db.Rental, error) {
	return s.Store.ListActiveRentals(ctx)
}

// ListOverdue returns active rentals whose due date has passed.
func (s *Service) ListOverdue(ctx context.Context) ([]db.Rental, error) {
	return s.Store.ListOverdueRentals(ctx, s.Now())
}

func (s *Service) emit(ctx context.Context, topic string, aggregate pgtype.UUID, payload any) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, aggregate, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("rental event emit failed")
	}
}
