package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"example.com/moodsync/internal/domain"
)

const cacheKeyPrefix = "moodsync:tracks:"

// redisStore is the part of *redis.Client the cache uses.
type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache caches the full recommendation list per state in Redis. Redis failures
// fall through to the wrapped catalog; catalog failures are never cached.
type RedisCache struct {
	store  redisStore
	next   Catalog
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache wraps next with a Redis-backed cache.
func NewRedisCache(store redisStore, next Catalog, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{store: store, next: next, ttl: ttl, logger: logger}
}

// Recommend implements Catalog.
func (c *RedisCache) Recommend(ctx context.Context, state domain.MentalState, limit int) ([]string, error) {
	key := cacheKeyPrefix + string(state)

	raw, err := c.store.Get(ctx, key).Result()
	switch {
	case err == nil:
		var tracks []string
		if jsonErr := json.Unmarshal([]byte(raw), &tracks); jsonErr == nil {
			return truncate(tracks, limit), nil
		}
		c.logger.Warn("discarding malformed cached recommendations", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("recommendation cache read failed", zap.String("key", key), zap.Error(err))
	}

	tracks, err := c.next.Recommend(ctx, state, 0)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(tracks); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("recommendation cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	return truncate(tracks, limit), nil
}
