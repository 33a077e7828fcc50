// Package metrics exposes the Prometheus registry used by the frontend and
// the inbound request metrics. Outbound and cache metrics are defined in
// their respective packages (client, cache) to keep them modular.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry and Gatherer are the Prometheus registry used by the frontend.
// Metrics in other packages register via promauto, which targets the same
// default registry.
var (
	Registry prometheus.Registerer = prometheus.DefaultRegisterer
	Gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
)

// Inbound request metrics, recorded by middleware.Metrics.
var (
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_http_requests_total",
		Help: "Total number of inbound requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontend_http_request_duration_seconds",
		Help:    "Inbound request duration in seconds by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves Gatherer in the Prometheus text format. Scrapes are
// counted on Registry.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{Registry: Registry}),
	)
}

// Metrics Documentation
//
// Inbound Metrics (pkg/metrics, pkg/middleware):
//   - frontend_http_requests_total{method, route, status} (Counter)
//   - frontend_http_request_duration_seconds{method, route} (Histogram)
//
// Cache Metrics (pkg/cache):
//   - frontend_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - frontend_cache_misses_total{layer} (Counter): Cache misses by layer
//   - frontend_cache_entries{layer="memory"} (Gauge): In-memory entry count
//   - frontend_cache_errors_total{layer, operation} (Counter): Cache operation errors
//
// Outbound Metrics (pkg/client):
//   - frontend_outbound_requests_total{method, status} (Counter)
//   - frontend_outbound_request_duration_seconds{method} (Histogram): Includes retries
//   - frontend_outbound_errors_total{class} (Counter): client, server, network
//   - frontend_outbound_retries_total{method} (Counter)
//   - frontend_outbound_retry_exhausted_total{method} (Counter)
//
// Example Prometheus Queries:
//
//   # Service cache hit rate
//   sum(rate(frontend_cache_hits_total[5m])) /
//   (sum(rate(frontend_cache_hits_total[5m])) + sum(rate(frontend_cache_misses_total[5m])))
//
//   # Connection resets retried
//   rate(frontend_outbound_retries_total[5m])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(frontend_http_request_duration_seconds_bucket[5m]))
