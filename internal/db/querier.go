package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrConflict is returned by ExecTx when a transaction keeps losing
// serialization or deadlock races after the configured retries.
var ErrConflict = errors.New("db: transaction conflict")

// ErrDuplicate is returned when an insert violates a unique constraint,
// such as a reused item SKU, coupon code or transaction number.
var ErrDuplicate = errors.New("db: duplicate key")

// InsertItemParams describes a new inventory item.
type InsertItemParams struct {
	SKU               string
	Name              string
	PriceCents        int64
	Quantity          int32
	Kind              string
	Active            bool
	LowStockThreshold int32
}

// ListItemsParams paginates item listings.
type ListItemsParams struct {
	Limit  int32
	Offset int32
}

// AdjustStockParams targets a single item's quantity.
type AdjustStockParams struct {
	ID       pgtype.UUID
	Quantity int32
}

// InsertCouponParams describes a new coupon.
type InsertCouponParams struct {
	Code             string
	Description      *string
	PercentBps       *int32
	AmountCents      *int64
	MinPurchaseCents int64
	MaxUses          *int32
	Active           bool
	ExpiresAt        *time.Time
}

// InsertTransactionParams persists a committed transaction header.
type InsertTransactionParams struct {
	Number        string
	Type          string
	EmployeeID    string
	CustomerID    *string
	CouponID      pgtype.UUID
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
	PaymentMethod string
	TenderedCents int64
	ChangeCents   int64
}

// InsertTransactionLineParams persists one line of a transaction.
type InsertTransactionLineParams struct {
	TransactionID  pgtype.UUID
	ItemID         pgtype.UUID
	SKU            string
	Name           string
	Quantity       int32
	UnitPriceCents int64
}

// ListTransactionsParams filters transaction listings.
type ListTransactionsParams struct {
	Type       string
	EmployeeID string
	From       *time.Time
	To         *time.Time
	Limit      int32
	Offset     int32
}

// InsertRentalParams persists a rental row at check-out.
type InsertRentalParams struct {
	TransactionID pgtype.UUID
	CustomerID    string
	ItemID        pgtype.UUID
	Quantity      int32
	PriceCents    int64
	RentalDate    time.Time
	DueDate       time.Time
	Notes         *string
}

// MarkRentalReturnedParams records the one-way check-in transition.
type MarkRentalReturnedParams struct {
	ID           pgtype.UUID
	ReturnDate   time.Time
	LateFeeCents int64
}

// ExtendRentalDueParams pushes a rental's due date forward.
type ExtendRentalDueParams struct {
	ID      pgtype.UUID
	DueDate time.Time
}

// InsertDomainEventParams appends a domain event.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
}

// Querier is the set of row operations the engine needs. The Postgres
// implementation hand-writes each query; the memory implementation backs
// them with maps for tests and local runs. Absent rows surface as
// pgx.ErrNoRows from both.
type Querier interface {
	InsertItem(ctx context.Context, arg InsertItemParams) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	GetItemBySKUForUpdate(ctx context.Context, sku string) (Item, error)
	ListItems(ctx context.Context, arg ListItemsParams) ([]Item, error)
	CountItems(ctx context.Context) (int64, error)
	// DecrementItemStock applies quantity = quantity - n only when enough
	// stock remains, returning the new quantity. pgx.ErrNoRows signals the
	// guard failed.
	DecrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error)
	IncrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error)

	InsertCoupon(ctx context.Context, arg InsertCouponParams) (Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error)
	IncrementCouponUsage(ctx context.Context, id pgtype.UUID) error

	// NextDailySequence returns the next per-day counter value; callers
	// derive the transaction number from it inside the same transaction.
	NextDailySequence(ctx context.Context, day string) (int32, error)

	InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error)
	InsertTransactionLine(ctx context.Context, arg InsertTransactionLineParams) (TransactionLine, error)
	GetTransactionByNumber(ctx context.Context, number string) (Transaction, error)
	ListTransactionLines(ctx context.Context, transactionID pgtype.UUID) ([]TransactionLine, error)
	ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error)

	InsertRental(ctx context.Context, arg InsertRentalParams) (Rental, error)
	GetRental(ctx context.Context, id pgtype.UUID) (Rental, error)
	GetRentalForUpdate(ctx context.Context, id pgtype.UUID) (Rental, error)
	ListRentalsByTransaction(ctx context.Context, transactionID pgtype.UUID) ([]Rental, error)
	ListActiveRentals(ctx context.Context) ([]Rental, error)
	ListOverdueRentals(ctx context.Context, asOf time.Time) ([]Rental, error)
	MarkRentalReturned(ctx context.Context, arg MarkRentalReturnedParams) error
	ExtendRentalDue(ctx context.Context, arg ExtendRentalDueParams) error

	InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error)
}

// Store is a Querier that can also run a function inside one atomic unit.
// ExecTx rolls everything back when fn errors and retries bounded times on
// transient serialization conflicts before surfacing ErrConflict.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}
