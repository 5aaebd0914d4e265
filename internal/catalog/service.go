package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// ErrNotFound is returned when no item exists for the given SKU.
var ErrNotFound = errors.New("catalog: item not found")

// ItemView is the read model served over HTTP and cached in Redis.
type ItemView struct {
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"priceCents"`
	Quantity   int32     `json:"quantity"`
	Kind       string    `json:"kind"`
	Active     bool      `json:"active"`
	LowStock   bool      `json:"lowStock"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func viewOf(item db.Item) ItemView {
	return ItemView{
		SKU:        item.SKU,
		Name:       item.Name,
		PriceCents: item.PriceCents,
		Quantity:   item.Quantity,
		Kind:       item.Kind,
		Active:     item.Active,
		LowStock:   item.Quantity <= item.LowStockThreshold,
		UpdatedAt:  item.UpdatedAt,
	}
}

// Service serves item reads with a short-lived cache in front of the store.
type Service struct {
	Store db.Store
	Cache *Cache
}

// Get resolves one item by SKU, preferring the cache. Stock counts can lag
// by at most the cache TTL; the authoritative check happens at checkout.
func (s *Service) Get(ctx context.Context, sku string) (ItemView, error) {
	key := "item:" + sku
	var cached ItemView
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("item cache read failed")
	}
	if hit {
		return cached, nil
	}
	item, err := s.Store.GetItemBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemView{}, ErrNotFound
		}
		return ItemView{}, err
	}
	view := viewOf(item)
	if err := s.Cache.SetJSON(ctx, key, view); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("item cache write failed")
	}
	return view, nil
}

// List pages through items. Listings skip the cache; they are already a
// single indexed query.
func (s *Service) List(ctx context.Context, page, perPage int) ([]ItemView, int64, error) {
	total, err := s.Store.CountItems(ctx)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.Store.ListItems(ctx, db.ListItemsParams{
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	})
	if err != nil {
		return nil, 0, err
	}
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, viewOf(item))
	}
	return views, total, nil
}

// CreateParams describes a new catalog item.
type CreateParams struct {
	SKU               string `json:"sku" validate:"required"`
	Name              string `json:"name" validate:"required"`
	PriceCents        int64  `json:"priceCents" validate:"gte=0"`
	Quantity          int32  `json:"quantity" validate:"gte=0"`
	Kind              string `json:"kind" validate:"required,oneof=sale rental"`
	LowStockThreshold int32  `json:"lowStockThreshold" validate:"gte=0"`
}

// Create registers an item. SKUs are unique.
func (s *Service) Create(ctx context.Context, p CreateParams) (ItemView, error) {
	item, err := s.Store.InsertItem(ctx, db.InsertItemParams{
		SKU:               p.SKU,
		Name:              p.Name,
		PriceCents:        p.PriceCents,
		Quantity:          p.Quantity,
		Kind:              p.Kind,
		Active:            true,
		LowStockThreshold: p.LowStockThreshold,
	})
	if err != nil {
		return ItemView{}, err
	}
	return viewOf(item), nil
}
