package client

import (
	"context"
	"log/slog"
	"time"

	"kasirinaja/cashier/internal/cache"
	"kasirinaja/cashier/internal/domain"
)

type ProductFetcher interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// CachedCatalog always asks the backend first and keeps the last good answer
// in the cache. When the backend is unreachable the cached snapshot is served
// until its TTL runs out.
type CachedCatalog struct {
	source ProductFetcher
	cache  cache.CatalogCache
	ttl    time.Duration
	log    *slog.Logger
}

func NewCachedCatalog(source ProductFetcher, c cache.CatalogCache, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if c == nil {
		c = cache.NoopCatalogCache{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{source: source, cache: c, ttl: ttl, log: logger}
}

func (c *CachedCatalog) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := c.source.FetchProducts(ctx)
	if err == nil {
		if cacheErr := c.cache.Set(ctx, cache.CatalogKey, products, c.ttl); cacheErr != nil {
			c.log.Warn("catalog snapshot write failed", "error", cacheErr)
		}
		return products, nil
	}

	cached, ok, cacheErr := c.cache.Get(ctx, cache.CatalogKey)
	if cacheErr != nil {
		c.log.Warn("catalog snapshot read failed", "error", cacheErr)
	}
	if !ok {
		return nil, err
	}
	c.log.Warn("serving cached catalog", "products", len(cached), "error", err)
	return cached, nil
}
