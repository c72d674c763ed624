package planning

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "fantastic-router:plan:"

// RedisRequestCache is a RequestCache backed by Redis, for deployments that
// run multiple planner instances against one cache. Redis errors degrade to
// cache misses; planning never fails because the cache is down.
type RedisRequestCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisRequestCache wraps an existing Redis client. A non-positive ttl
// falls back to the default request TTL.
func NewRedisRequestCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisRequestCache {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRequestCache{client: client, ttl: ttl, logger: logger}
}

// Get fetches and decodes the cached plan for key.
func (c *RedisRequestCache) Get(ctx context.Context, key string) (*ActionPlan, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed", "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	var plan ActionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &plan, true
}

// Set stores the plan with the configured TTL.
func (c *RedisRequestCache) Set(ctx context.Context, key string, plan *ActionPlan) {
	data, err := json.Marshal(plan)
	if err != nil {
		c.logger.Warn("Failed to encode plan for cache", "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", "error", err)
	}
}

// Stats reports this instance's hit and miss counters plus the key count on
// the Redis side.
func (c *RedisRequestCache) Stats(ctx context.Context) CacheStats {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	keys, err := c.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		c.logger.Warn("Redis cache stats failed", "error", err)
		return stats
	}
	stats.Entries = len(keys)
	return stats
}

// Purge removes every cached plan under this cache's prefix.
func (c *RedisRequestCache) Purge(ctx context.Context) {
	keys, err := c.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		c.logger.Warn("Redis cache purge failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Redis cache purge failed", "error", err)
	}
}
