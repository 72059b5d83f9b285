package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const catalogKeyPrefix = "catalog:"

// CatalogCache stores rendered product collections in Redis. A nil cache or
// a cache without a client is a no-op, so callers never need to check.
type CatalogCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCatalogCache wraps rdb. A nil rdb disables caching.
func NewCatalogCache(rdb *redis.Client, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{rdb: rdb, ttl: ttl}
}

func (c *CatalogCache) enabled() bool {
	return c != nil && c.rdb != nil
}

// Get loads key into dst and reports whether it was found.
func (c *CatalogCache) Get(ctx context.Context, key string, dst any) bool {
	if !c.enabled() {
		return false
	}

	raw, err := c.rdb.Get(ctx, catalogKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] get %s: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("[Cache] decode %s: %v", key, err)
		return false
	}
	return true
}

// Set stores value under key for the configured TTL.
func (c *CatalogCache) Set(ctx context.Context, key string, value any) {
	if !c.enabled() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[Cache] encode %s: %v", key, err)
		return
	}

	if err := c.rdb.Set(ctx, catalogKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		log.Printf("[Cache] set %s: %v", key, err)
	}
}

// Invalidate drops every cached catalog entry.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}

	iter := c.rdb.Scan(ctx, 0, catalogKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("[Cache] scan: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[Cache] invalidate: %v", err)
	}
}
