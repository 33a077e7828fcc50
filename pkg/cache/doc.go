// Package cache provides short-lived caching of values fetched from
// internal services.
//
// Two backends implement the Cache interface:
//
//   - TTLCache keeps values in process memory with a fixed TTL. Expired
//     entries are never returned and are evicted lazily.
//   - RedisCache stores JSON encoded values in Redis with the same TTL, so
//     several frontend instances can share one cache.
//
// # Basic Usage
//
//	services := cache.NewTTLCache[adminusers.Service](15 * time.Minute)
//
//	key := cache.ServiceKey(42) // "frontend:service:gateway_account_id=42"
//
//	svc, err := services.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from adminusers, then
//		_ = services.Set(ctx, key, svc)
//	}
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - frontend_cache_hits_total{layer} - Cache hits
//   - frontend_cache_misses_total{layer} - Cache misses
//   - frontend_cache_entries{layer="memory"} - In-memory entry count
//   - frontend_cache_errors_total{layer,operation} - Cache operation errors
package cache
