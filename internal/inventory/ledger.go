package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-kasir/internal/db"
)

var (
	// ErrItemUnavailable is returned when a SKU does not exist or is not
	// active for sale.
	ErrItemUnavailable = errors.New("inventory: item unavailable")
	// ErrInsufficientStock is returned when the on-hand quantity cannot
	// cover the requested amount.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Request names a SKU and the quantity to reserve or restock.
type Request struct {
	SKU      string
	Quantity int32
}

// Reserved reports the outcome of a single reservation.
type Reserved struct {
	Item      db.Item
	Quantity  int32
	Remaining int32
	// LowStock is set when this reservation moved the quantity at or
	// below the item's alert threshold.
	LowStock bool
}

// Reserve locks one item row and conditionally decrements its stock. The
// decrement carries its own quantity guard, so stock can never go negative
// even under concurrent reservations.
func Reserve(ctx context.Context, q db.Querier, sku string, quantity int32) (Reserved, error) {
	item, err := q.GetItemBySKUForUpdate(ctx, sku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reserved{}, fmt.Errorf("%w: %s", ErrItemUnavailable, sku)
		}
		return Reserved{}, err
	}
	if !item.Active {
		return Reserved{}, fmt.Errorf("%w: %s", ErrItemUnavailable, sku)
	}
	remaining, err := q.DecrementItemStock(ctx, db.AdjustStockParams{ID: item.ID, Quantity: quantity})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reserved{}, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, sku, item.Quantity, quantity)
		}
		return Reserved{}, err
	}
	return Reserved{
		Item:      item,
		Quantity:  quantity,
		Remaining: remaining,
		LowStock:  remaining <= item.LowStockThreshold && item.Quantity > item.LowStockThreshold,
	}, nil
}

// ReserveBatch reserves every request inside the caller's atomic unit.
// Duplicate SKUs are merged and rows are locked in ascending SKU order so
// two concurrent batches can never deadlock on each other.
func ReserveBatch(ctx context.Context, q db.Querier, reqs []Request) ([]Reserved, error) {
	merged := mergeRequests(reqs)
	out := make([]Reserved, 0, len(merged))
	for _, req := range merged {
		res, err := Reserve(ctx, q, req.SKU, req.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Restock adds quantity back to an item, used by returns and rental
// check-ins.
func Restock(ctx context.Context, q db.Querier, sku string, quantity int32) (db.Item, error) {
	item, err := q.GetItemBySKUForUpdate(ctx, sku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Item{}, fmt.Errorf("%w: %s", ErrItemUnavailable, sku)
		}
		return db.Item{}, err
	}
	remaining, err := q.IncrementItemStock(ctx, db.AdjustStockParams{ID: item.ID, Quantity: quantity})
	if err != nil {
		return db.Item{}, err
	}
	item.Quantity = remaining
	return item, nil
}

// RestockBatch restocks every request in ascending SKU order.
func RestockBatch(ctx context.Context, q db.Querier, reqs []Request) ([]db.Item, error) {
	merged := mergeRequests(reqs)
	out := make([]db.Item, 0, len(merged))
	for _, req := range merged {
		item, err := Restock(ctx, q, req.SKU, req.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func mergeRequests(reqs []Request) []Request {
	bySKU := make(map[string]int32, len(reqs))
	for _, r := range reqs {
		bySKU[r.SKU] += r.Quantity
	}
	merged := make([]Request, 0, len(bySKU))
	for sku, qty := range bySKU {
		merged = append(merged, Request{SKU: sku, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].SKU < merged[j].SKU })
	return merged
}
