package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Cache stores values of type V under string keys for a fixed TTL.
// Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get returns the value for key, or ErrCacheMiss when it is absent or
	// expired.
	Get(ctx context.Context, key string) (V, error)

	// Set stores value under key, replacing any previous value and
	// restarting its TTL.
	Set(ctx context.Context, key string, value V) error
}
