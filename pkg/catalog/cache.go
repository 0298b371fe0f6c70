package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge-io/core/pkg/contracts"
)

const liveContextKey = "flowforge:catalog:livecontext"

// ContextSource produces a fresh catalog snapshot, typically a registry.
type ContextSource interface {
	Snapshot() contracts.LiveContext
}

// Cache serves LiveContext snapshots through redis with a TTL, so
// validation fan-out does not hammer the registry on every request.
type Cache struct {
	rdb    *redis.Client
	source ContextSource
	ttl    time.Duration
}

// NewCache creates a cache over the given redis client and snapshot source.
func NewCache(rdb *redis.Client, source ContextSource, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, source: source, ttl: ttl}
}

// LiveContext returns the cached snapshot, refreshing from the source on
// miss. A redis failure falls through to the source: the cache is an
// optimization, never a dependency.
func (c *Cache) LiveContext(ctx context.Context) (contracts.LiveContext, error) {
	raw, err := c.rdb.Get(ctx, liveContextKey).Bytes()
	if err == nil {
		var lc contracts.LiveContext
		if jsonErr := json.Unmarshal(raw, &lc); jsonErr == nil {
			return lc, nil
		}
		// Corrupt cache entry: refresh below.
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return contracts.LiveContext{}, ctx.Err()
	}

	return c.Refresh(ctx)
}

// Refresh pulls a fresh snapshot and writes it through to redis.
func (c *Cache) Refresh(ctx context.Context) (contracts.LiveContext, error) {
	lc := c.source.Snapshot()

	raw, err := json.Marshal(lc)
	if err != nil {
		return contracts.LiveContext{}, fmt.Errorf("catalog: encode live context: %w", err)
	}
	// Best effort: serve the snapshot even if the write-through fails.
	_ = c.rdb.Set(ctx, liveContextKey, raw, c.ttl).Err()

	return lc, nil
}

// Invalidate drops the cached snapshot, forcing the next read to refresh.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, liveContextKey).Err(); err != nil {
		return fmt.Errorf("catalog: invalidate live context: %w", err)
	}
	return nil
}
