package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Transaction types recorded by the register.
const (
	TxTypeSale   = "sale"
	TxTypeRental = "rental"
	TxTypeReturn = "return"
)

// Payment methods accepted at the register.
const (
	PaymentCash   = "cash"
	PaymentCredit = "credit"
	PaymentDebit  = "debit"
)

// Item kinds. Rental transactions only accept rentable items.
const (
	ItemKindSale   = "sale"
	ItemKindRental = "rental"
)

// Item is a product in shared inventory. Quantity is mutated only through
// the conditional stock updates below and never goes negative.
type Item struct {
	ID                pgtype.UUID
	SKU               string
	Name              string
	PriceCents        int64
	Quantity          int32
	Kind              string
	Active            bool
	LowStockThreshold int32
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Coupon is a discount code. PercentBps and AmountCents are mutually
// exclusive; TimesUsed only ever grows and stays within MaxUses when set.
type Coupon struct {
	ID               pgtype.UUID
	Code             string
	Description      *string
	PercentBps       *int32
	AmountCents      *int64
	MinPurchaseCents int64
	MaxUses          *int32
	TimesUsed        int32
	Active           bool
	ExpiresAt        *time.Time
	CreatedAt        time.Time
}

// Transaction is an immutable committed register transaction. Corrections
// are new transactions of type return.
type Transaction struct {
	ID            pgtype.UUID
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
	CreatedAt     time.Time
}

// TransactionLine is a line item owned by its transaction. UnitPriceCents
// is a snapshot taken at commit time.
type TransactionLine struct {
	ID             pgtype.UUID
	TransactionID  pgtype.UUID
	ItemID         pgtype.UUID
	SKU            string
	Name           string
	Quantity       int32
	UnitPriceCents int64
}

// Rental tracks a checked-out item until it is returned. The returned flag
// transitions once, at check-in.
type Rental struct {
	ID            pgtype.UUID
	TransactionID pgtype.UUID
	CustomerID    string
	ItemID        pgtype.UUID
	Quantity      int32
	PriceCents    int64
	RentalDate    time.Time
	DueDate       time.Time
	Returned      bool
	ReturnDate    *time.Time
	LateFeeCents  int64
	Notes         *string
}

// DomainEvent is an append-only record of something that happened.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  time.Time
}
