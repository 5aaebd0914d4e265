package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgx connections and transactions the queries need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries executes the hand-written SQL against a connection or transaction.
type Queries struct {
	db DBTX
}

// New constructs Queries over the given connection source.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx rebinds the queries onto a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// PG is the Postgres-backed store. Atomicity comes from database
// transactions with row locks taken in deterministic order by callers.
type PG struct {
	*Queries
	Pool       *pgxpool.Pool
	MaxRetries int
}

// NewPG wires a store over a pgx pool.
func NewPG(pool *pgxpool.Pool, maxRetries int) *PG {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &PG{Queries: New(pool), Pool: pool, MaxRetries: maxRetries}
}

// ExecTx runs fn inside a database transaction, retrying bounded times on
// serialization or deadlock failures.
func (s *PG) ExecTx(ctx context.Context, fn func(Querier) error) error {
	var lastErr error
	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (s *PG) runTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// mapInsertErr folds unique violations into ErrDuplicate so callers can
// match with errors.Is regardless of the store backend.
func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

const itemColumns = `id, sku, name, price_cents, quantity, kind, active, low_stock_threshold, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.SKU, &i.Name, &i.PriceCents, &i.Quantity, &i.Kind, &i.Active, &i.LowStockThreshold, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (q *Queries) InsertItem(ctx context.Context, arg InsertItemParams) (Item, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO items (sku, name, price_cents, quantity, kind, active, low_stock_threshold)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+itemColumns,
		arg.SKU, arg.Name, arg.PriceCents, arg.Quantity, arg.Kind, arg.Active, arg.LowStockThreshold)
	item, err := scanItem(row)
	return item, mapInsertErr(err)
}

func (q *Queries) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	row := q.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE sku = $1`, sku)
	return scanItem(row)
}

func (q *Queries) GetItemBySKUForUpdate(ctx context.Context, sku string) (Item, error) {
	row := q.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE sku = $1 FOR UPDATE`, sku)
	return scanItem(row)
}

func (q *Queries) ListItems(ctx context.Context, arg ListItemsParams) ([]Item, error) {
	rows, err := q.db.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY sku LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM items`).Scan(&n)
	return n, err
}

func (q *Queries) DecrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var remaining int32
	err := q.db.QueryRow(ctx, `
UPDATE items SET quantity = quantity - $2, updated_at = now()
WHERE id = $1 AND quantity >= $2
RETURNING quantity`, arg.ID, arg.Quantity).Scan(&remaining)
	return remaining, err
}

func (q *Queries) IncrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var remaining int32
	err := q.db.QueryRow(ctx, `
UPDATE items SET quantity = quantity + $2, updated_at = now()
WHERE id = $1
RETURNING quantity`, arg.ID, arg.Quantity).Scan(&remaining)
	return remaining, err
}

const couponColumns = `id, code, description, percent_bps, amount_cents, min_purchase_cents, max_uses, times_used, active, expires_at, created_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.PercentBps, &c.AmountCents, &c.MinPurchaseCents, &c.MaxUses, &c.TimesUsed, &c.Active, &c.ExpiresAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) InsertCoupon(ctx context.Context, arg InsertCouponParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO coupons (code, description, percent_bps, amount_cents, min_purchase_cents, max_uses, active, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+couponColumns,
		arg.Code, arg.Description, arg.PercentBps, arg.AmountCents, arg.MinPurchaseCents, arg.MaxUses, arg.Active, arg.ExpiresAt)
	coupon, err := scanCoupon(row)
	return coupon, mapInsertErr(err)
}

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	row := q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	return scanCoupon(row)
}

func (q *Queries) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	row := q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1 FOR UPDATE`, code)
	return scanCoupon(row)
}

func (q *Queries) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE coupons SET times_used = times_used + 1 WHERE id = $1`, id)
	return err
}

func (q *Queries) NextDailySequence(ctx context.Context, day string) (int32, error) {
	var seq int32
	err := q.db.QueryRow(ctx, `
INSERT INTO daily_counters (day, counter) VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET counter = daily_counters.counter + 1
RETURNING counter`, day).Scan(&seq)
	return seq, err
}

const transactionColumns = `id, number, type, employee_id, customer_id, coupon_id, subtotal_cents, discount_cents, tax_cents, total_cents, payment_method, tendered_cents, change_cents, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.Number, &t.Type, &t.EmployeeID, &t.CustomerID, &t.CouponID, &t.SubtotalCents, &t.DiscountCents, &t.TaxCents, &t.TotalCents, &t.PaymentMethod, &t.TenderedCents, &t.ChangeCents, &t.CreatedAt)
	return t, err
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO transactions (number, type, employee_id, customer_id, coupon_id, subtotal_cents, discount_cents, tax_cents, total_cents, payment_method, tendered_cents, change_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+transactionColumns,
		arg.Number, arg.Type, arg.EmployeeID, arg.CustomerID, arg.CouponID, arg.SubtotalCents, arg.DiscountCents, arg.TaxCents, arg.TotalCents, arg.PaymentMethod, arg.TenderedCents, arg.ChangeCents)
	tx, err := scanTransaction(row)
	return tx, mapInsertErr(err)
}

func (q *Queries) GetTransactionByNumber(ctx context.Context, number string) (Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE number = $1`, number)
	return scanTransaction(row)
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+transactionColumns+` FROM transactions
WHERE ($1 = '' OR type = $1)
  AND ($2 = '' OR employee_id = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at <= $4)
ORDER BY created_at DESC
LIMIT $5 OFFSET $6`,
		arg.Type, arg.EmployeeID, arg.From, arg.To, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const lineColumns = `id, transaction_id, item_id, sku, name, quantity, unit_price_cents`

func scanLine(row pgx.Row) (TransactionLine, error) {
	var l TransactionLine
	err := row.Scan(&l.ID, &l.TransactionID, &l.ItemID, &l.SKU, &l.Name, &l.Quantity, &l.UnitPriceCents)
	return l, err
}

func (q *Queries) InsertTransactionLine(ctx context.Context, arg InsertTransactionLineParams) (TransactionLine, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO transaction_lines (transaction_id, item_id, sku, name, quantity, unit_price_cents)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+lineColumns,
		arg.TransactionID, arg.ItemID, arg.SKU, arg.Name, arg.Quantity, arg.UnitPriceCents)
	return scanLine(row)
}

func (q *Queries) ListTransactionLines(ctx context.Context, transactionID pgtype.UUID) ([]TransactionLine, error) {
	rows, err := q.db.Query(ctx, `SELECT `+lineColumns+` FROM transaction_lines WHERE transaction_id = $1 ORDER BY sku`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []TransactionLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const rentalColumns = `id, transaction_id, customer_id, item_id, quantity, price_cents, rental_date, due_date, returned, return_date, late_fee_cents, notes`

func scanRental(row pgx.Row) (Rental, error) {
	var r Rental
	err := row.Scan(&r.ID, &r.TransactionID, &r.CustomerID, &r.ItemID, &r.Quantity, &r.PriceCents, &r.RentalDate, &r.DueDate, &r.Returned, &r.ReturnDate, &r.LateFeeCents, &r.Notes)
	return r, err
}

func (q *Queries) InsertRental(ctx context.Context, arg InsertRentalParams) (Rental, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO rentals (transaction_id, customer_id, item_id, quantity, price_cents, rental_date, due_date, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+rentalColumns,
		arg.TransactionID, arg.CustomerID, arg.ItemID, arg.Quantity, arg.PriceCents, arg.RentalDate, arg.DueDate, arg.Notes)
	return scanRental(row)
}

func (q *Queries) GetRental(ctx context.Context, id pgtype.UUID) (Rental, error) {
	row := q.db.QueryRow(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1`, id)
	return scanRental(row)
}

func (q *Queries) GetRentalForUpdate(ctx context.Context, id pgtype.UUID) (Rental, error) {
	row := q.db.QueryRow(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id = $1 FOR UPDATE`, id)
	return scanRental(row)
}

func (q *Queries) ListRentalsByTransaction(ctx context.Context, transactionID pgtype.UUID) ([]Rental, error) {
	return q.listRentals(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE transaction_id = $1 ORDER BY due_date`, transactionID)
}

func (q *Queries) ListActiveRentals(ctx context.Context) ([]Rental, error) {
	return q.listRentals(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE NOT returned ORDER BY due_date`)
}

func (q *Queries) ListOverdueRentals(ctx context.Context, asOf time.Time) ([]Rental, error) {
	return q.listRentals(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE NOT returned AND due_date < $1 ORDER BY due_date`, asOf)
}

func (q *Queries) listRentals(ctx context.Context, sql string, args ...any) ([]Rental, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rentals []Rental
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, r)
	}
	return rentals, rows.Err()
}

func (q *Queries) MarkRentalReturned(ctx context.Context, arg MarkRentalReturnedParams) error {
	_, err := q.db.Exec(ctx, `
UPDATE rentals SET returned = TRUE, return_date = $2, late_fee_cents = $3
WHERE id = $1`, arg.ID, arg.ReturnDate, arg.LateFeeCents)
	return err
}

func (q *Queries) ExtendRentalDue(ctx context.Context, arg ExtendRentalDueParams) error {
	_, err := q.db.Exec(ctx, `UPDATE rentals SET due_date = $2 WHERE id = $1 AND NOT returned`, arg.ID, arg.DueDate)
	return err
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	var ev DomainEvent
	err := q.db.QueryRow(ctx, `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at`,
		arg.Topic, arg.AggregateID, arg.Payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}
