package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
)

// Handlers processes background tasks in the worker binary.
type Handlers struct {
	Store  db.Store
	Bus    *events.Bus
	Locker lock.Locker
	Logger zerolog.Logger
	Now    func() time.Time
}

// Register binds task types onto an asynq mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeLowStockAlert, h.HandleLowStock)
	mux.HandleFunc(TypeOverdueScan, h.HandleOverdueScan)
}

// HandleLowStock re-reads the item and emits a stock.low event when the
// quantity is still at or below the threshold. The re-read makes stale
// alerts harmless: a restock between enqueue and processing cancels it.
func (h *Handlers) HandleLowStock(ctx context.Context, task *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock payload: %w", err)
	}
	item, err := h.Store.GetItemBySKU(ctx, payload.SKU)
	if err != nil {
		return fmt.Errorf("load item %s: %w", payload.SKU, err)
	}
	if item.Quantity > item.LowStockThreshold {
		h.Logger.Debug().Str("sku", payload.SKU).Msg("stock recovered before alert fired")
		return nil
	}
	h.Logger.Warn().
		Str("sku", item.SKU).
		Int32("quantity", item.Quantity).
		Int32("threshold", item.LowStockThreshold).
		Msg("low stock alert")
	if h.Bus != nil {
		if _, err := h.Bus.Emit(ctx, events.TopicStockLow, item.ID, map[string]any{
			"sku":       item.SKU,
			"quantity":  item.Quantity,
			"threshold": item.LowStockThreshold,
		}); err != nil {
			h.Logger.Warn().Err(err).Str("sku", item.SKU).Msg("stock.low emit failed")
		}
	}
	return nil
}

// HandleOverdueScan emits a rental.overdue event for each active rental
// past due. A redis lock keeps overlapping worker replicas from double
// scanning; a held lock skips the sweep rather than waiting.
func (h *Handlers) HandleOverdueScan(ctx context.Context, _ *asynq.Task) error {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	err := h.Locker.TryLock(ctx, "overdue-scan", time.Minute, func(ctx context.Context) error {
		overdue, err := h.Store.ListOverdueRentals(ctx, now())
		if err != nil {
			return fmt.Errorf("list overdue: %w", err)
		}
		for _, r := range overdue {
			h.Logger.Info().
				Str("rental_id", common.UUIDString(r.ID)).
				Str("customer_id", r.CustomerID).
				Time("due_date", r.DueDate).
				Msg("rental overdue")
			if h.Bus == nil {
				continue
			}
			if _, err := h.Bus.Emit(ctx, events.TopicRentalOverdue, r.ID, map[string]any{
				"rentalId":   common.UUIDString(r.ID),
				"customerId": r.CustomerID,
				"dueDate":    r.DueDate,
			}); err != nil {
				h.Logger.Warn().Err(err).Msg("rental.overdue emit failed")
			}
		}
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		h.Logger.Debug().Msg("overdue scan already running elsewhere")
		return nil
	}
	return err
}
