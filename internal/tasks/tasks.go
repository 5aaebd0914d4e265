package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names routed by the asynq worker.
const (
	TypeLowStockAlert = "inventory:low_stock"
	TypeOverdueScan   = "rental:overdue_scan"
)

// LowStockPayload describes an item that crossed its alert threshold.
type LowStockPayload struct {
	SKU       string `json:"sku"`
	Remaining int32  `json:"remaining"`
}

// Client enqueues background tasks. It satisfies checkout.LowStockEnqueuer.
type Client struct {
	A *asynq.Client
}

// NewClient wraps an asynq client bound to the shared Redis instance.
func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{A: asynq.NewClient(opt)}
}

// Close releases the underlying asynq client.
func (c *Client) Close() error {
	if c == nil || c.A == nil {
		return nil
	}
	return c.A.Close()
}

// EnqueueLowStock schedules a low-stock alert. Alerts for the same SKU are
// deduplicated for ten minutes so a busy register does not flood the queue.
func (c *Client) EnqueueLowStock(ctx context.Context, sku string, remaining int32) error {
	if c == nil || c.A == nil {
		return nil
	}
	payload, err := json.Marshal(LowStockPayload{SKU: sku, Remaining: remaining})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeLowStockAlert, payload)
	_, err = c.A.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("low-stock:%s", sku)),
		asynq.Retention(10*time.Minute),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueOverdueScan schedules one overdue-rental sweep.
func (c *Client) EnqueueOverdueScan(ctx context.Context) error {
	if c == nil || c.A == nil {
		return nil
	}
	_, err := c.A.EnqueueContext(ctx, asynq.NewTask(TypeOverdueScan, nil), asynq.MaxRetry(1))
	return err
}
