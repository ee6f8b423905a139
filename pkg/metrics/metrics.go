// Package metrics exposes the Prometheus registry used by the storefront
// client. Metrics are defined with promauto in the packages that record
// them (client, cache, loader, throttle); this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every storefront metric lives in.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry holds.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists every metric family the module registers.
var Names = []string{
	// pkg/throttle
	"storefront_throttle_calls_total",
	// pkg/loader
	"storefront_loader_cycles_total",
	"storefront_loader_items_appended_total",
	"storefront_loader_cycle_duration_seconds",
	// pkg/client
	"storefront_requests_total",
	"storefront_request_duration_seconds",
	"storefront_errors_total",
	"storefront_retries_total",
	"storefront_retry_backoff_seconds",
	"storefront_retry_exhausted_total",
	// pkg/cache
	"storefront_cache_hits_total",
	"storefront_cache_misses_total",
	"storefront_cache_size_bytes",
	"storefront_cache_not_modified_total",
	"storefront_cache_conditional_requests_total",
	"storefront_cache_errors_total",
}

// Metrics Documentation
//
// Scroll Metrics (pkg/throttle):
//   - storefront_throttle_calls_total{result} (Counter): scroll notifications scheduled or dropped
//
// Loader Metrics (pkg/loader):
//   - storefront_loader_cycles_total{outcome} (Counter): appended, exhausted, failed, skipped
//   - storefront_loader_items_appended_total (Counter): listing items appended
//   - storefront_loader_cycle_duration_seconds (Histogram): duration of cycles that fetched
//
// Request Metrics (pkg/client):
//   - storefront_requests_total{endpoint, status} (Counter): numeric path segments become {id}
//   - storefront_request_duration_seconds{endpoint} (Histogram)
//   - storefront_errors_total{class} (Counter): client, server, rate_limit, network
//   - storefront_retries_total{error_class}, storefront_retry_backoff_seconds{error_class},
//     storefront_retry_exhausted_total{error_class}
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{layer}, storefront_cache_misses_total
//   - storefront_cache_size_bytes{layer}
//   - storefront_cache_not_modified_total, storefront_cache_conditional_requests_total
//   - storefront_cache_errors_total{operation}
//
// Example Prometheus Queries:
//
//   # Failed fetch cycles
//   rate(storefront_loader_cycles_total{outcome="failed"}[5m])
//
//   # Dropped scroll notifications
//   rate(storefront_throttle_calls_total{result="dropped"}[5m])
//
//   # P95 listing latency
//   histogram_quantile(0.95, rate(storefront_request_duration_seconds_bucket{endpoint="/products/"}[5m]))
