package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Mem is an in-memory store. A single mutex serialises every atomic unit,
// which gives the same all-or-nothing visibility the Postgres store gets
// from database transactions. Used by tests and STORE_DRIVER=memory runs.
type Mem struct {
	mu   sync.Mutex
	data *memData
	// Now can be overridden by tests to control timestamps.
	Now func() time.Time
}

type memData struct {
	items        map[string]Item
	skuIndex     map[string]string
	coupons      map[string]Coupon
	codeIndex    map[string]string
	counters     map[string]int32
	transactions map[string]Transaction
	numberIndex  map[string]string
	lines        map[string][]TransactionLine
	rentals      map[string]Rental
	events       []DomainEvent
}

// NewMem constructs an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		data: &memData{
			items:        map[string]Item{},
			skuIndex:     map[string]string{},
			coupons:      map[string]Coupon{},
			codeIndex:    map[string]string{},
			counters:     map[string]int32{},
			transactions: map[string]Transaction{},
			numberIndex:  map[string]string{},
			lines:        map[string][]TransactionLine{},
			rentals:      map[string]Rental{},
		},
		Now: time.Now,
	}
}

// ExecTx runs fn against a snapshot-guarded view. On error the previous
// state is restored so no partial mutation is ever observable.
func (m *Mem) ExecTx(_ context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.data.clone()
	if err := fn(&memQueries{d: m.data, now: m.Now}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d *memData) clone() *memData {
	c := &memData{
		items:        make(map[string]Item, len(d.items)),
		skuIndex:     make(map[string]string, len(d.skuIndex)),
		coupons:      make(map[string]Coupon, len(d.coupons)),
		codeIndex:    make(map[string]string, len(d.codeIndex)),
		counters:     make(map[string]int32, len(d.counters)),
		transactions: make(map[string]Transaction, len(d.transactions)),
		numberIndex:  make(map[string]string, len(d.numberIndex)),
		lines:        make(map[string][]TransactionLine, len(d.lines)),
		rentals:      make(map[string]Rental, len(d.rentals)),
		events:       append([]DomainEvent(nil), d.events...),
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.skuIndex {
		c.skuIndex[k] = v
	}
	for k, v := range d.coupons {
		c.coupons[k] = v
	}
	for k, v := range d.codeIndex {
		c.codeIndex[k] = v
	}
	for k, v := range d.counters {
		c.counters[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.numberIndex {
		c.numberIndex[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = append([]TransactionLine(nil), v...)
	}
	for k, v := range d.rentals {
		c.rentals[k] = v
	}
	return c
}

// memQueries operates on memData without locking; callers hold the mutex.
type memQueries struct {
	d   *memData
	now func() time.Time
}

func (m *Mem) with(fn func(q *memQueries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memQueries{d: m.data, now: m.Now})
}

// The direct Querier methods below take the lock per call so reads outside
// ExecTx stay consistent.

func (m *Mem) InsertItem(ctx context.Context, arg InsertItemParams) (Item, error) {
	var out Item
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertItem(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	var out Item
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.GetItemBySKU(ctx, sku)
		return err
	})
	return out, err
}

func (m *Mem) GetItemBySKUForUpdate(ctx context.Context, sku string) (Item, error) {
	return m.GetItemBySKU(ctx, sku)
}

func (m *Mem) ListItems(ctx context.Context, arg ListItemsParams) ([]Item, error) {
	var out []Item
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListItems(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) CountItems(ctx context.Context) (int64, error) {
	var out int64
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.CountItems(ctx)
		return err
	})
	return out, err
}

func (m *Mem) DecrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var out int32
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.DecrementItemStock(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) IncrementItemStock(ctx context.Context, arg AdjustStockParams) (int32, error) {
	var out int32
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.IncrementItemStock(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) InsertCoupon(ctx context.Context, arg InsertCouponParams) (Coupon, error) {
	var out Coupon
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertCoupon(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	var out Coupon
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.GetCouponByCode(ctx, code)
		return err
	})
	return out, err
}

func (m *Mem) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return m.GetCouponByCode(ctx, code)
}

func (m *Mem) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) error {
	return m.with(func(q *memQueries) error {
		return q.IncrementCouponUsage(ctx, id)
	})
}

func (m *Mem) NextDailySequence(ctx context.Context, day string) (int32, error) {
	var out int32
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.NextDailySequence(ctx, day)
		return err
	})
	return out, err
}

func (m *Mem) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error) {
	var out Transaction
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertTransaction(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) InsertTransactionLine(ctx context.Context, arg InsertTransactionLineParams) (TransactionLine, error) {
	var out TransactionLine
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertTransactionLine(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) GetTransactionByNumber(ctx context.Context, number string) (Transaction, error) {
	var out Transaction
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.GetTransactionByNumber(ctx, number)
		return err
	})
	return out, err
}

func (m *Mem) ListTransactionLines(ctx context.Context, transactionID pgtype.UUID) ([]TransactionLine, error) {
	var out []TransactionLine
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListTransactionLines(ctx, transactionID)
		return err
	})
	return out, err
}

func (m *Mem) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	var out []Transaction
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListTransactions(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) InsertRental(ctx context.Context, arg InsertRentalParams) (Rental, error) {
	var out Rental
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertRental(ctx, arg)
		return err
	})
	return out, err
}

func (m *Mem) GetRental(ctx context.Context, id pgtype.UUID) (Rental, error) {
	var out Rental
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.GetRental(ctx, id)
		return err
	})
	return out, err
}

func (m *Mem) GetRentalForUpdate(ctx context.Context, id pgtype.UUID) (Rental, error) {
	return m.GetRental(ctx, id)
}

func (m *Mem) ListRentalsByTransaction(ctx context.Context, transactionID pgtype.UUID) ([]Rental, error) {
	var out []Rental
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListRentalsByTransaction(ctx, transactionID)
		return err
	})
	return out, err
}

func (m *Mem) ListActiveRentals(ctx context.Context) ([]Rental, error) {
	var out []Rental
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListActiveRentals(ctx)
		return err
	})
	return out, err
}

func (m *Mem) ListOverdueRentals(ctx context.Context, asOf time.Time) ([]Rental, error) {
	var out []Rental
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.ListOverdueRentals(ctx, asOf)
		return err
	})
	return out, err
}

func (m *Mem) MarkRentalReturned(ctx context.Context, arg MarkRentalReturnedParams) error {
	return m.with(func(q *memQueries) error {
		return q.MarkRentalReturned(ctx, arg)
	})
}

func (m *Mem) ExtendRentalDue(ctx context.Context, arg ExtendRentalDueParams) error {
	return m.with(func(q *memQueries) error {
		return q.ExtendRentalDue(ctx, arg)
	})
}

func (m *Mem) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	var out DomainEvent
	err := m.with(func(q *memQueries) error {
		var err error
		out, err = q.InsertDomainEvent(ctx, arg)
		return err
	})
	return out, err
}

func (q *memQueries) InsertItem(_ context.Context, arg InsertItemParams) (Item, error) {
	if _, exists := q.d.skuIndex[arg.SKU]; exists {
		return Item{}, ErrDuplicate
	}
	now := q.now()
	item := Item{
		ID:                common.NewUUID(),
		SKU:               arg.SKU,
		Name:              arg.Name,
		PriceCents:        arg.PriceCents,
		Quantity:          arg.Quantity,
		Kind:              arg.Kind,
		Active:            arg.Active,
		LowStockThreshold: arg.LowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	key := common.UUIDString(item.ID)
	q.d.items[key] = item
	q.d.skuIndex[arg.SKU] = key
	return item, nil
}

func (q *memQueries) GetItemBySKU(_ context.Context, sku string) (Item, error) {
	key, ok := q.d.skuIndex[sku]
	if !ok {
		return Item{}, pgx.ErrNoRows
	}
	return q.d.items[key], nil
}

func (q *memQueries) GetItemBySKUForUpdate(ctx context.Context, sku string) (Item, error) {
	return q.GetItemBySKU(ctx, sku)
}

func (q *memQueries) ListItems(_ context.Context, arg ListItemsParams) ([]Item, error) {
	items := make([]Item, 0, len(q.d.items))
	for _, it := range q.d.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return paginate(items, arg.Limit, arg.Offset), nil
}

func (q *memQueries) CountItems(_ context.Context) (int64, error) {
	return int64(len(q.d.items)), nil
}

func (q *memQueries) DecrementItemStock(_ context.Context, arg AdjustStockParams) (int32, error) {
	key := common.UUIDString(arg.ID)
	item, ok := q.d.items[key]
	if !ok || item.Quantity < arg.Quantity {
		return 0, pgx.ErrNoRows
	}
	item.Quantity -= arg.Quantity
	item.UpdatedAt = q.now()
	q.d.items[key] = item
	return item.Quantity, nil
}

func (q *memQueries) IncrementItemStock(_ context.Context, arg AdjustStockParams) (int32, error) {
	key := common.UUIDString(arg.ID)
	item, ok := q.d.items[key]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	item.Quantity += arg.Quantity
	item.UpdatedAt = q.now()
	q.d.items[key] = item
	return item.Quantity, nil
}

func (q *memQueries) InsertCoupon(_ context.Context, arg InsertCouponParams) (Coupon, error) {
	if _, exists := q.d.codeIndex[arg.Code]; exists {
		return Coupon{}, ErrDuplicate
	}
	coupon := Coupon{
		ID:               common.NewUUID(),
		Code:             arg.Code,
		Description:      arg.Description,
		PercentBps:       arg.PercentBps,
		AmountCents:      arg.AmountCents,
		MinPurchaseCents: arg.MinPurchaseCents,
		MaxUses:          arg.MaxUses,
		Active:           arg.Active,
		ExpiresAt:        arg.ExpiresAt,
		CreatedAt:        q.now(),
	}
	key := common.UUIDString(coupon.ID)
	q.d.coupons[key] = coupon
	q.d.codeIndex[arg.Code] = key
	return coupon, nil
}

func (q *memQueries) GetCouponByCode(_ context.Context, code string) (Coupon, error) {
	key, ok := q.d.codeIndex[code]
	if !ok {
		return Coupon{}, pgx.ErrNoRows
	}
	return q.d.coupons[key], nil
}

func (q *memQueries) GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error) {
	return q.GetCouponByCode(ctx, code)
}

func (q *memQueries) IncrementCouponUsage(_ context.Context, id pgtype.UUID) error {
	key := common.UUIDString(id)
	coupon, ok := q.d.coupons[key]
	if !ok {
		return pgx.ErrNoRows
	}
	coupon.TimesUsed++
	q.d.coupons[key] = coupon
	return nil
}

func (q *memQueries) NextDailySequence(_ context.Context, day string) (int32, error) {
	q.d.counters[day]++
	return q.d.counters[day], nil
}

func (q *memQueries) InsertTransaction(_ context.Context, arg InsertTransactionParams) (Transaction, error) {
	if _, exists := q.d.numberIndex[arg.Number]; exists {
		return Transaction{}, ErrDuplicate
	}
	tx := Transaction{
		ID:            common.NewUUID(),
		Number:        arg.Number,
		Type:          arg.Type,
		EmployeeID:    arg.EmployeeID,
		CustomerID:    arg.CustomerID,
		CouponID:      arg.CouponID,
		SubtotalCents: arg.SubtotalCents,
		DiscountCents: arg.DiscountCents,
		TaxCents:      arg.TaxCents,
		TotalCents:    arg.TotalCents,
		PaymentMethod: arg.PaymentMethod,
		TenderedCents: arg.TenderedCents,
		ChangeCents:   arg.ChangeCents,
		CreatedAt:     q.now(),
	}
	key := common.UUIDString(tx.ID)
	q.d.transactions[key] = tx
	q.d.numberIndex[arg.Number] = key
	return tx, nil
}

func (q *memQueries) GetTransactionByNumber(_ context.Context, number string) (Transaction, error) {
	key, ok := q.d.numberIndex[number]
	if !ok {
		return Transaction{}, pgx.ErrNoRows
	}
	return q.d.transactions[key], nil
}

func (q *memQueries) ListTransactions(_ context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	txs := make([]Transaction, 0, len(q.d.transactions))
	for _, t := range q.d.transactions {
		if arg.Type != "" && t.Type != arg.Type {
			continue
		}
		if arg.EmployeeID != "" && t.EmployeeID != arg.EmployeeID {
			continue
		}
		if arg.From != nil && t.CreatedAt.Before(*arg.From) {
			continue
		}
		if arg.To != nil && t.CreatedAt.After(*arg.To) {
			continue
		}
		txs = append(txs, t)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return paginate(txs, arg.Limit, arg.Offset), nil
}

func (q *memQueries) InsertTransactionLine(_ context.Context, arg InsertTransactionLineParams) (TransactionLine, error) {
	line := TransactionLine{
		ID:             common.NewUUID(),
		TransactionID:  arg.TransactionID,
		ItemID:         arg.ItemID,
		SKU:            arg.SKU,
		Name:           arg.Name,
		Quantity:       arg.Quantity,
		UnitPriceCents: arg.UnitPriceCents,
	}
	key := common.UUIDString(arg.TransactionID)
	q.d.lines[key] = append(q.d.lines[key], line)
	return line, nil
}

func (q *memQueries) ListTransactionLines(_ context.Context, transactionID pgtype.UUID) ([]TransactionLine, error) {
	lines := append([]TransactionLine(nil), q.d.lines[common.UUIDString(transactionID)]...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].SKU < lines[j].SKU })
	return lines, nil
}

func (q *memQueries) InsertRental(_ context.Context, arg InsertRentalParams) (Rental, error) {
	rental := Rental{
		ID:            common.NewUUID(),
		TransactionID: arg.TransactionID,
		CustomerID:    arg.CustomerID,
		ItemID:        arg.ItemID,
		Quantity:      arg.Quantity,
		PriceCents:    arg.PriceCents,
		RentalDate:    arg.RentalDate,
		DueDate:       arg.DueDate,
		Notes:         arg.Notes,
	}
	q.d.rentals[common.UUIDString(rental.ID)] = rental
	return rental, nil
}

func (q *memQueries) GetRental(_ context.Context, id pgtype.UUID) (Rental, error) {
	rental, ok := q.d.rentals[common.UUIDString(id)]
	if !ok {
		return Rental{}, pgx.ErrNoRows
	}
	return rental, nil
}

func (q *memQueries) GetRentalForUpdate(ctx context.Context, id pgtype.UUID) (Rental, error) {
	return q.GetRental(ctx, id)
}

func (q *memQueries) ListRentalsByTransaction(_ context.Context, transactionID pgtype.UUID) ([]Rental, error) {
	return q.filterRentals(func(r Rental) bool {
		return common.UUIDEqual(r.TransactionID, transactionID)
	}), nil
}

func (q *memQueries) ListActiveRentals(_ context.Context) ([]Rental, error) {
	return q.filterRentals(func(r Rental) bool { return !r.Returned }), nil
}

func (q *memQueries) ListOverdueRentals(_ context.Context, asOf time.Time) ([]Rental, error) {
	return q.filterRentals(func(r Rental) bool {
		return !r.Returned && r.DueDate.Before(asOf)
	}), nil
}

func (q *memQueries) filterRentals(keep func(Rental) bool) []Rental {
	var rentals []Rental
	for _, r := range q.d.rentals {
		if keep(r) {
			rentals = append(rentals, r)
		}
	}
	sort.Slice(rentals, func(i, j int) bool { return rentals[i].DueDate.Before(rentals[j].DueDate) })
	return rentals
}

func (q *memQueries) MarkRentalReturned(_ context.Context, arg MarkRentalReturnedParams) error {
	key := common.UUIDString(arg.ID)
	rental, ok := q.d.rentals[key]
	if !ok {
		return pgx.ErrNoRows
	}
	returnDate := arg.ReturnDate
	rental.Returned = true
	rental.ReturnDate = &returnDate
	rental.LateFeeCents = arg.LateFeeCents
	q.d.rentals[key] = rental
	return nil
}

func (q *memQueries) ExtendRentalDue(_ context.Context, arg ExtendRentalDueParams) error {
	key := common.UUIDString(arg.ID)
	rental, ok := q.d.rentals[key]
	if !ok || rental.Returned {
		return nil
	}
	rental.DueDate = arg.DueDate
	q.d.rentals[key] = rental
	return nil
}

func (q *memQueries) InsertDomainEvent(_ context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	ev := DomainEvent{
		ID:          common.NewUUID(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     append([]byte(nil), arg.Payload...),
		OccurredAt:  q.now(),
	}
	q.d.events = append(q.d.events, ev)
	return ev, nil
}

func paginate[T any](all []T, limit, offset int32) []T {
	if offset >= int32(len(all)) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < int32(len(all)) {
		all = all[:limit]
	}
	return all
}
