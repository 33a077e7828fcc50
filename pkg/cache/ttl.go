package cache

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

const layerMemory = "memory"

type ttlItem[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with a fixed TTL. Expired entries are
// never returned and are removed lazily, at most once every TTL/2.
type TTLCache[V any] struct {
	items map[string]ttlItem[V]
	ttl   time.Duration
	mu    sync.Mutex

	// lastEvictedAt is when expired items were last removed.
	lastEvictedAt time.Time

	// Used for tests.
	clock quartz.Clock
}

// NewTTLCache returns a new in-memory cache whose entries live for ttl.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		items: make(map[string]ttlItem[V]),
		ttl:   ttl,
		clock: quartz.NewReal(),
	}
}

// NewTTLCacheWithClock is NewTTLCache with an explicit clock.
func NewTTLCacheWithClock[V any](ttl time.Duration, clock quartz.Clock) *TTLCache[V] {
	c := NewTTLCache[V](ttl)
	c.clock = clock
	return c
}

// Get implements Cache. An entry is present while its age is below the TTL.
func (c *TTLCache[V]) Get(_ context.Context, key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.items[key]
	if !ok {
		cacheMisses.WithLabelValues(layerMemory).Inc()
		return zero, ErrCacheMiss
	}
	if !c.clock.Now().Before(item.expiresAt) {
		cacheMisses.WithLabelValues(layerMemory).Inc()
		return zero, ErrCacheMiss
	}

	cacheHits.WithLabelValues(layerMemory).Inc()
	return item.value, nil
}

// Set implements Cache.
func (c *TTLCache[V]) Set(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.items[key] = ttlItem[V]{
		value:     value,
		expiresAt: now.Add(c.ttl),
	}
	c.evictExpired(now)
	cacheEntries.WithLabelValues(layerMemory).Set(float64(len(c.items)))
	return nil
}

// Delete removes key from the cache.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	cacheEntries.WithLabelValues(layerMemory).Set(float64(len(c.items)))
}

// Reset removes all entries.
func (c *TTLCache[V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	cacheEntries.WithLabelValues(layerMemory).Set(0)
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictExpired removes expired items. It must be called with mu held.
func (c *TTLCache[V]) evictExpired(now time.Time) {
	if now.Sub(c.lastEvictedAt) < c.ttl/2 {
		return
	}
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
		}
	}
	c.lastEvictedAt = now
}
