package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by layer
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_cache_hits_total",
			Help: "Total number of frontend cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// cacheMisses tracks cache misses by layer
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_cache_misses_total",
			Help: "Total number of frontend cache misses",
		},
		[]string{"layer"},
	)

	// cacheEntries tracks the number of in-memory entries
	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frontend_cache_entries",
			Help: "Current number of entries held by the in-memory cache",
		},
		[]string{"layer"},
	)

	// cacheErrors tracks cache operation errors
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontend_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"layer", "operation"}, // "get", "set", "delete"
	)
)
