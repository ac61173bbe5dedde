// Package cache is a Redis read-through cache in front of a catalog source.
// Only the aggregates are cached: price bounds and the location list. Listing
// reads always reach the backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/ffimoveis/imoveis/internal/catalog"
	"github.com/ffimoveis/imoveis/internal/domain"
)

const (
	keyPrefix    = "imoveis:catalog:"
	boundsKey    = keyPrefix + "bounds"
	locationsKey = keyPrefix + "locations"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 5 * time.Minute

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_cache_lookups_total",
	Help: "Catalog cache lookups by key and result (hit, miss, error).",
}, []string{"key", "result"})

// Cache wraps a catalog.Source. A Redis failure is logged and the call falls
// through to the backend.
type Cache struct {
	next   catalog.Source
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache over next.
func New(next catalog.Source, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

// FetchAllProperties is not cached.
func (c *Cache) FetchAllProperties(ctx context.Context) ([]domain.PropertyRecord, error) {
	return c.next.FetchAllProperties(ctx)
}

// FetchPriceBounds returns the cached bounds or loads and stores them.
// ErrNoPrices is never cached.
func (c *Cache) FetchPriceBounds(ctx context.Context) (domain.Bounds, error) {
	var b domain.Bounds
	if c.get(ctx, boundsKey, &b) {
		return b, nil
	}

	b, err := c.next.FetchPriceBounds(ctx)
	if err != nil {
		return domain.Bounds{}, err
	}
	c.set(ctx, boundsKey, b)
	return b, nil
}

// FetchLocations returns the cached location list or loads and stores it.
func (c *Cache) FetchLocations(ctx context.Context) ([]domain.Location, error) {
	var locs []domain.Location
	if c.get(ctx, locationsKey, &locs) {
		return locs, nil
	}

	locs, err := c.next.FetchLocations(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, locationsKey, locs)
	return locs, nil
}

// Invalidate drops every cached aggregate. Call it after the dataset changes.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, boundsKey, locationsKey).Err(); err != nil {
		return fmt.Errorf("redis del catalog cache: %w", err)
	}
	c.logger.DebugContext(ctx, "catalog cache invalidated")
	return nil
}

// Unwrap returns the wrapped source.
func (c *Cache) Unwrap() catalog.Source {
	return c.next
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			lookups.WithLabelValues(key, "miss").Inc()
			return false
		}
		lookups.WithLabelValues(key, "error").Inc()
		c.logger.WarnContext(ctx, "catalog cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		lookups.WithLabelValues(key, "error").Inc()
		c.logger.WarnContext(ctx, "catalog cache entry corrupt",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	lookups.WithLabelValues(key, "hit").Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "marshal catalog cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
