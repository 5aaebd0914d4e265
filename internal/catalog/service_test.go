package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/db"
)

func newTestService(t *testing.T) (*Service, *db.Mem) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := db.NewMem()
	return &Service{Store: store, Cache: NewCache(client, time.Minute)}, store
}

func TestGetServesFromCacheOnRepeat(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateParams{
		SKU: "GAME-001", Name: "Catan", PriceCents: 4999, Quantity: 10, Kind: "sale", LowStockThreshold: 2,
	})
	require.NoError(t, err)
	require.Equal(t, int32(10), created.Quantity)
	require.False(t, created.LowStock)

	first, err := svc.Get(ctx, "GAME-001")
	require.NoError(t, err)
	require.Equal(t, "Catan", first.Name)

	// Decrement behind the cache. The cached view may lag within the TTL.
	item, err := store.GetItemBySKU(ctx, "GAME-001")
	require.NoError(t, err)
	_, err = store.DecrementItemStock(ctx, db.AdjustStockParams{ID: item.ID, Quantity: 9})
	require.NoError(t, err)

	second, err := svc.Get(ctx, "GAME-001")
	require.NoError(t, err)
	require.Equal(t, int32(10), second.Quantity)
}

func TestGetUnknownSKU(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDuplicateSKU(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := CreateParams{SKU: "GAME-001", Name: "Catan", PriceCents: 4999, Quantity: 10, Kind: "sale"}
	_, err := svc.Create(ctx, p)
	require.NoError(t, err)

	_, err = svc.Create(ctx, p)
	require.ErrorIs(t, err, db.ErrDuplicate)
}

func TestListPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, sku := range []string{"A-1", "A-2", "A-3"} {
		_, err := svc.Create(ctx, CreateParams{SKU: sku, Name: sku, PriceCents: 100, Quantity: 1, Kind: "sale"})
		require.NoError(t, err)
	}

	views, total, err := svc.List(ctx, 1, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, views, 2)

	views, _, err = svc.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
}
