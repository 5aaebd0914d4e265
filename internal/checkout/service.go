package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/coupon"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/rental"
)

var (
	// ErrEmptyCart is returned when a transaction carries no lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidType is returned for an unknown transaction type.
	ErrInvalidType = errors.New("checkout: invalid transaction type")
	// ErrInvalidPayment is returned for an unknown payment method.
	ErrInvalidPayment = errors.New("checkout: invalid payment method")
	// ErrCustomerRequired is returned when a rental has no customer.
	ErrCustomerRequired = errors.New("checkout: rentals require a customer")
	// ErrNotRentable is returned when a rental cart references an item
	// that is not offered for rent.
	ErrNotRentable = errors.New("checkout: item is not rentable")
	// ErrNotFound is returned when a transaction number does not exist.
	ErrNotFound = errors.New("checkout: transaction not found")
)

// LineInput names a SKU and quantity in the cart.
type LineInput struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int32  `json:"quantity" validate:"required,gt=0"`
}

// Payment describes how the transaction is settled.
type Payment struct {
	Method   string `json:"method" validate:"required,oneof=cash credit debit"`
	Tendered int64  `json:"tenderedCents" validate:"gte=0"`
}

// Input is a full checkout request.
type Input struct {
	Type       string      `json:"type" validate:"required,oneof=sale rental return"`
	EmployeeID string      `json:"employeeId" validate:"required"`
	CustomerID *string     `json:"customerId"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
	CouponCode *string     `json:"couponCode"`
	Payment    Payment     `json:"payment"`
	RentalDays *int        `json:"rentalDays" validate:"omitempty,gt=0"`
	Notes      *string     `json:"notes"`
}

// ReceiptLine is one committed line on the receipt.
type ReceiptLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int32  `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// ReceiptRental describes a rental opened by the transaction.
type ReceiptRental struct {
	ID       string    `json:"id"`
	SKU      string    `json:"sku"`
	Quantity int32     `json:"quantity"`
	DueDate  time.Time `json:"dueDate"`
}

// Receipt is the committed view of a transaction.
type Receipt struct {
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	Lines         []ReceiptLine   `json:"lines"`
	SubtotalCents int64           `json:"subtotalCents"`
	DiscountCents int64           `json:"discountCents"`
	TaxCents      int64           `json:"taxCents"`
	TotalCents    int64           `json:"totalCents"`
	Currency      string          `json:"currency"`
	CouponCode    *string         `json:"couponCode,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	TenderedCents int64           `json:"tenderedCents"`
	ChangeCents   int64           `json:"changeCents"`
	Rentals       []ReceiptRental `json:"rentals,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// LowStockEnqueuer schedules an alert for items that crossed their
// threshold during a committed transaction.
type LowStockEnqueuer interface {
	EnqueueLowStock(ctx context.Context, sku string, remaining int32) error
}

// Service orchestrates transactions: pricing, coupon evaluation, inventory
// movement, rental check-out and persistence happen in one atomic unit.
type Service struct {
	Store    db.Store
	Events   *events.Bus
	Rentals  *rental.Service
	Tasks    LowStockEnqueuer
	TaxBps   int
	Currency string
	Now      func() time.Time
}

// NewService wires the orchestrator.
func NewService(store db.Store, bus *events.Bus, rentals *rental.Service, taxBps int, currency string) *Service {
	return &Service{
		Store:    store,
		Events:   bus,
		Rentals:  rentals,
		TaxBps:   taxBps,
		Currency: currency,
		Now:      time.Now,
	}
}

// CreateSale records a sale.
func (s *Service) CreateSale(ctx context.Context, in Input) (Receipt, error) {
	in.Type = db.TxTypeSale
	return s.Create(ctx, in)
}

// CreateRental records a rental transaction and opens rental rows.
func (s *Service) CreateRental(ctx context.Context, in Input) (Receipt, error) {
	in.Type = db.TxTypeRental
	return s.Create(ctx, in)
}

// CreateReturn records a sale return and restocks the returned items.
func (s *Service) CreateReturn(ctx context.Context, in Input) (Receipt, error) {
	in.Type = db.TxTypeReturn
	return s.Create(ctx, in)
}

type commitState struct {
	receipt  Receipt
	txID     pgtype.UUID
	couponID pgtype.UUID
	lowStock []inventory.Reserved
	rentals  []db.Rental
}

// Create runs the full checkout. On any failure nothing is persisted, no
// stock moves and no coupon use is consumed.
func (s *Service) Create(ctx context.Context, in Input) (Receipt, error) {
	if err := s.validate(in); err != nil {
		s.countResult(in.Type, "rejected")
		return Receipt{}, err
	}
	now := s.Now()
	var st commitState
	err := s.Store.ExecTx(ctx, func(q db.Querier) error {
		return s.run(ctx, q, in, now, &st)
	})
	if err != nil {
		s.countResult(in.Type, "rejected")
		if errors.Is(err, inventory.ErrInsufficientStock) && obs.StockRejectionsTotal != nil {
			obs.StockRejectionsTotal.Inc()
		}
		return Receipt{}, err
	}
	s.afterCommit(ctx, in, &st)
	return st.receipt, nil
}

func (s *Service) validate(in Input) error {
	switch in.Type {
	case db.TxTypeSale, db.TxTypeRental, db.TxTypeReturn:
	default:
		return ErrInvalidType
	}
	switch in.Payment.Method {
	case db.PaymentCash, db.PaymentCredit, db.PaymentDebit:
	default:
		return ErrInvalidPayment
	}
	if len(in.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 {
			return pricing.ErrInvalidQuantity
		}
	}
	if in.Type == db.TxTypeRental && (in.CustomerID == nil || *in.CustomerID == "") {
		return ErrCustomerRequired
	}
	return nil
}

func (s *Service) run(ctx context.Context, q db.Querier, in Input, now time.Time, st *commitState) error {
	*st = commitState{}

	reqs := make([]inventory.Request, 0, len(in.Lines))
	for _, l := range in.Lines {
		reqs = append(reqs, inventory.Request{SKU: l.SKU, Quantity: l.Quantity})
	}

	// Move stock first; row locks are taken in ascending SKU order. The
	// whole unit rolls back on any later failure, so a coupon rejection
	// still leaves inventory untouched.
	var (
		moved []inventory.Reserved
		err   error
	)
	if in.Type == db.TxTypeReturn {
		items, restockErr := inventory.RestockBatch(ctx, q, reqs)
		if restockErr != nil {
			return restockErr
		}
		moved = make([]inventory.Reserved, 0, len(items))
		merged := mergeQuantities(reqs)
		for _, item := range items {
			moved = append(moved, inventory.Reserved{Item: item, Quantity: merged[item.SKU]})
		}
	} else {
		moved, err = inventory.ReserveBatch(ctx, q, reqs)
		if err != nil {
			return err
		}
	}

	if in.Type == db.TxTypeRental {
		for _, m := range moved {
			if m.Item.Kind != db.ItemKindRental {
				return fmt.Errorf("%w: %s", ErrNotRentable, m.Item.SKU)
			}
		}
	}

	priceLines := make([]pricing.Line, 0, len(moved))
	for _, m := range moved {
		priceLines = append(priceLines, pricing.Line{Qty: m.Quantity, UnitPrice: m.Item.PriceCents})
	}
	subtotal, err := pricing.Compute(priceLines, 0, 0)
	if err != nil {
		return err
	}

	// Coupons apply to sales and rentals; the usage counter is settled
	// only after everything else in this unit has succeeded.
	var (
		discount   int64
		couponRow  db.Coupon
		usedCoupon bool
	)
	if in.CouponCode != nil && *in.CouponCode != "" && in.Type != db.TxTypeReturn {
		ev, evalErr := coupon.Evaluate(ctx, q, *in.CouponCode, subtotal.Subtotal, now, true)
		if evalErr != nil {
			return evalErr
		}
		discount = ev.Discount
		couponRow = ev.Coupon
		usedCoupon = true
	}

	summary, err := pricing.Compute(priceLines, discount, s.TaxBps)
	if err != nil {
		return err
	}

	tendered := in.Payment.Tendered
	var change int64
	if in.Payment.Method == db.PaymentCash && in.Type != db.TxTypeReturn {
		change, err = pricing.CashChange(summary.Total, tendered)
		if err != nil {
			return err
		}
	} else {
		// Card payments and refunds settle exactly.
		tendered = summary.Total
	}

	number, err := nextNumber(ctx, q, now)
	if err != nil {
		return err
	}

	var couponID pgtype.UUID
	if usedCoupon {
		couponID = couponRow.ID
	}
	txRow, err := q.InsertTransaction(ctx, db.InsertTransactionParams{
		Number:        number,
		Type:          in.Type,
		EmployeeID:    in.EmployeeID,
		CustomerID:    in.CustomerID,
		CouponID:      couponID,
		SubtotalCents: summary.Subtotal,
		DiscountCents: summary.Discount,
		TaxCents:      summary.Tax,
		TotalCents:    summary.Total,
		PaymentMethod: in.Payment.Method,
		TenderedCents: tendered,
		ChangeCents:   change,
	})
	if err != nil {
		return err
	}

	receiptLines := make([]ReceiptLine, 0, len(moved))
	for _, m := range moved {
		if _, err := q.InsertTransactionLine(ctx, db.InsertTransactionLineParams{
			TransactionID:  txRow.ID,
			ItemID:         m.Item.ID,
			SKU:            m.Item.SKU,
			Name:           m.Item.Name,
			Quantity:       m.Quantity,
			UnitPriceCents: m.Item.PriceCents,
		}); err != nil {
			return err
		}
		receiptLines = append(receiptLines, ReceiptLine{
			SKU:            m.Item.SKU,
			Name:           m.Item.Name,
			Quantity:       m.Quantity,
			UnitPriceCents: m.Item.PriceCents,
			LineTotalCents: int64(m.Quantity) * m.Item.PriceCents,
		})
	}

	var receiptRentals []ReceiptRental
	if in.Type == db.TxTypeRental {
		due := s.Rentals.DueDate(now)
		if in.RentalDays != nil {
			due = now.Add(time.Duration(*in.RentalDays) * 24 * time.Hour)
		}
		for _, m := range moved {
			row, rentErr := rental.CheckOut(ctx, q, rental.CheckOutParams{
				TransactionID: txRow.ID,
				CustomerID:    *in.CustomerID,
				Item:          m.Item,
				Quantity:      m.Quantity,
				RentalDate:    now,
				DueDate:       due,
				Notes:         in.Notes,
			})
			if rentErr != nil {
				return rentErr
			}
			st.rentals = append(st.rentals, row)
			receiptRentals = append(receiptRentals, ReceiptRental{
				ID:       common.UUIDString(row.ID),
				SKU:      m.Item.SKU,
				Quantity: m.Quantity,
				DueDate:  due,
			})
		}
	}

	if usedCoupon {
		if err := coupon.Settle(ctx, q, couponRow.ID); err != nil {
			return err
		}
		st.couponID = couponRow.ID
	}

	for _, m := range moved {
		if m.LowStock {
			st.lowStock = append(st.lowStock, m)
		}
	}
	st.txID = txRow.ID
	st.receipt = Receipt{
		Number:        txRow.Number,
		Type:          txRow.Type,
		Lines:         receiptLines,
		SubtotalCents: summary.Subtotal,
		DiscountCents: summary.Discount,
		TaxCents:      summary.Tax,
		TotalCents:    summary.Total,
		Currency:      s.Currency,
		CouponCode:    in.CouponCode,
		PaymentMethod: in.Payment.Method,
		TenderedCents: tendered,
		ChangeCents:   change,
		Rentals:       receiptRentals,
		CreatedAt:     txRow.CreatedAt,
	}
	if !usedCoupon {
		st.receipt.CouponCode = nil
	}
	return nil
}

// afterCommit raises side effects that must never undo a committed
// transaction: metrics, domain events and alert tasks.
func (s *Service) afterCommit(ctx context.Context, in Input, st *commitState) {
	s.countResult(in.Type, "committed")
	if st.couponID.Valid && obs.CouponRedemptionsTotal != nil {
		obs.CouponRedemptionsTotal.Inc()
	}
	if s.Events != nil {
		payload := map[string]any{
			"number":     st.receipt.Number,
			"type":       st.receipt.Type,
			"totalCents": st.receipt.TotalCents,
			"employeeId": in.EmployeeID,
		}
		if _, err := s.Events.Emit(ctx, events.TopicTransactionCommitted, st.txID, payload); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("number", st.receipt.Number).Msg("transaction event emit failed")
		}
		for _, row := range st.rentals {
			if _, err := s.Events.Emit(ctx, events.TopicRentalCheckedOut, row.ID, map[string]any{
				"rentalId": common.UUIDString(row.ID),
				"dueDate":  row.DueDate,
			}); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("rental event emit failed")
			}
		}
	}
	for _, m := range st.lowStock {
		if obs.LowStockAlertsTotal != nil {
			obs.LowStockAlertsTotal.Inc()
		}
		if s.Tasks != nil {
			if err := s.Tasks.EnqueueLowStock(ctx, m.Item.SKU, m.Remaining); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("sku", m.Item.SKU).Msg("low stock enqueue failed")
			}
		}
	}
}

func (s *Service) countResult(txType, result string) {
	if obs.TransactionsTotal == nil {
		return
	}
	if txType == "" {
		txType = "unknown"
	}
	obs.TransactionsTotal.WithLabelValues(txType, result).Inc()
}

// nextNumber draws the next date-scoped sequence inside the transaction,
// e.g. 20260301-0007.
func nextNumber(ctx context.Context, q db.Querier, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := q.NextDailySequence(ctx, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", day, seq), nil
}

func mergeQuantities(reqs []inventory.Request) map[string]int32 {
	merged := make(map[string]int32, len(reqs))
	for _, r := range reqs {
		merged[r.SKU] += r.Quantity
	}
	return merged
}

// Get loads a committed transaction by number with its lines and rentals.
func (s *Service) Get(ctx context.Context, number string) (Receipt, error) {
	txRow, err := s.Store.GetTransactionByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}
	lines, err := s.Store.ListTransactionLines(ctx, txRow.ID)
	if err != nil {
		return Receipt{}, err
	}
	receipt := receiptFromRow(txRow, lines, s.Currency)
	if txRow.Type == db.TxTypeRental {
		rentals, err := s.Store.ListRentalsByTransaction(ctx, txRow.ID)
		if err != nil {
			return Receipt{}, err
		}
		bySKU := make(map[string]string, len(lines))
		for _, l := range lines {
			bySKU[common.UUIDString(l.ItemID)] = l.SKU
		}
		for _, r := range rentals {
			receipt.Rentals = append(receipt.Rentals, ReceiptRental{
				ID:       common.UUIDString(r.ID),
				SKU:      bySKU[common.UUIDString(r.ItemID)],
				Quantity: r.Quantity,
				DueDate:  r.DueDate,
			})
		}
	}
	return receipt, nil
}

// List returns committed transactions matching the filters.
func (s *Service) List(ctx context.Context, arg db.ListTransactionsParams) ([]Receipt, error) {
	rows, err := s.Store.ListTransactions(ctx, arg)
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(rows))
	for _, row := range rows {
		out = append(out, receiptFromRow(row, nil, s.Currency))
	}
	return out, nil
}

// DailyReport aggregates committed transactions for one calendar day.
type DailyReport struct {
	Day           string `json:"day"`
	Transactions  int    `json:"transactions"`
	SubtotalCents int64  `json:"subtotalCents"`
	DiscountCents int64  `json:"discountCents"`
	TaxCents      int64  `json:"taxCents"`
	TotalCents    int64  `json:"totalCents"`
}

// Report rolls up one day of transactions.
func (s *Service) Report(ctx context.Context, day time.Time) (DailyReport, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24*time.Hour - time.Nanosecond)
	rows, err := s.Store.ListTransactions(ctx, db.ListTransactionsParams{
		From:  &from,
		To:    &to,
		Limit: 10_000,
	})
	if err != nil {
		return DailyReport{}, err
	}
	report := DailyReport{Day: from.Format("2006-01-02"), Transactions: len(rows)}
	for _, row := range rows {
		report.SubtotalCents += row.SubtotalCents
		report.DiscountCents += row.DiscountCents
		report.TaxCents += row.TaxCents
		report.TotalCents += row.TotalCents
	}
	return report, nil
}

func receiptFromRow(row db.Transaction, lines []db.TransactionLine, currency string) Receipt {
	r := Receipt{
		Number:        row.Number,
		Type:          row.Type,
		SubtotalCents: row.SubtotalCents,
		DiscountCents: row.DiscountCents,
		TaxCents:      row.TaxCents,
		TotalCents:    row.TotalCents,
		Currency:      currency,
		PaymentMethod: row.PaymentMethod,
		TenderedCents: row.TenderedCents,
		ChangeCents:   row.ChangeCents,
		CreatedAt:     row.CreatedAt,
	}
	for _, l := range lines {
		r.Lines = append(r.Lines, ReceiptLine{
			SKU:            l.SKU,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			LineTotalCents: int64(l.Quantity) * l.UnitPriceCents,
		})
	}
	return r
}
