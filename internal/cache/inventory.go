package cache

import (
	"context"
	"fmt"
	"time"

	"dava-bot/internal/convo"
)

const defaultInventoryTTL = 5 * time.Minute

// InventoryCache is a cache-aside wrapper around an inventory provider.
// Stock levels shown in replies may lag by at most the TTL; the draft's
// frozen price comes from the snapshot current at resolution time, which
// is exactly the contract the decision engine wants.
type InventoryCache struct {
	source convo.InventoryProvider
	redis  *Redis
	ttl    time.Duration
}

// NewInventoryCache wraps source with a redis snapshot cache.
func NewInventoryCache(source convo.InventoryProvider, redis *Redis, ttl time.Duration) *InventoryCache {
	if ttl <= 0 {
		ttl = defaultInventoryTTL
	}
	return &InventoryCache{source: source, redis: redis, ttl: ttl}
}

// ListProducts implements convo.InventoryProvider.
func (c *InventoryCache) ListProducts(ctx context.Context, businessID string) ([]convo.Product, error) {
	key := fmt.Sprintf("inventory:%s", businessID)

	var cached []convo.Product
	if c.redis != nil && c.redis.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	products, err := c.source.ListProducts(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if c.redis != nil {
		c.redis.SetJSON(ctx, key, products, c.ttl)
	}
	return products, nil
}
