package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const layerRedis = "redis"

// RedisCache is a Cache backed by Redis, for deployments where several
// frontend instances share cached values. Values are stored as JSON and
// expire through the Redis key TTL.
type RedisCache[V any] struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache creates a new Redis backed cache whose entries live for ttl.
func NewRedisCache[V any](redisClient *redis.Client, ttl time.Duration) *RedisCache[V] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisCache[V]{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get implements Cache.
func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, error) {
	var value V

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheMisses.WithLabelValues(layerRedis).Inc()
			return value, ErrCacheMiss
		}
		cacheErrors.WithLabelValues(layerRedis, "get").Inc()
		return value, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		cacheErrors.WithLabelValues(layerRedis, "get").Inc()
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	cacheHits.WithLabelValues(layerRedis).Inc()
	return value, nil
}

// Set implements Cache.
func (c *RedisCache[V]) Set(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		cacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		cacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (c *RedisCache[V]) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		cacheErrors.WithLabelValues(layerRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
