package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashier/internal/domain"
)

func newTestCache(t *testing.T) (*RedisCatalogCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCatalogCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCatalogCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, CatalogKey)
	require.NoError(t, err)
	assert.False(t, ok)

	products := []domain.Product{{Code: "A", Name: "Apel", UnitPrice: 1000, BulkPrice: 9000, BulkQuantityLabel: "box"}}
	require.NoError(t, c.Set(ctx, CatalogKey, products, time.Minute))

	got, ok, err := c.Get(ctx, CatalogKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, products, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, CatalogKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCatalogCacheSkipsNilAndDeletes(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, CatalogKey, nil, time.Minute))
	assert.False(t, mr.Exists(CatalogKey))

	require.NoError(t, c.Set(ctx, CatalogKey, []domain.Product{}, time.Minute))
	got, ok, err := c.Get(ctx, CatalogKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)

	require.NoError(t, c.Delete(ctx, CatalogKey))
	assert.False(t, mr.Exists(CatalogKey))
}

func TestRedisCatalogCacheCorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(CatalogKey, "not json"))

	_, ok, err := c.Get(context.Background(), CatalogKey)
	assert.Error(t, err)
	assert.False(t, ok)
}
