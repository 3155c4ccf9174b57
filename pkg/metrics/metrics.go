// Package metrics exposes the Prometheus registry shared by the viewer.
// Metrics are declared with promauto next to the code that records them
// (client, cache, ratelimit, viewer, web); this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where promauto registers all postview metrics.
var Registry = prometheus.DefaultRegisterer

// Gatherer is read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Gateway (pkg/client):
//   - postview_requests_total{status} (Counter)
//   - postview_request_duration_seconds (Histogram)
//   - postview_errors_total{kind, class} (Counter)
//   - postview_payload_coerced_total (Counter): non-array payloads shown as empty
//   - postview_retries_total{error_class}, postview_retry_backoff_seconds{error_class},
//     postview_retry_exhausted_total{error_class}
//
// Cache (pkg/cache):
//   - postview_cache_hits_total, postview_cache_misses_total (Counter)
//   - postview_cache_entry_bytes (Histogram)
//   - postview_conditional_requests_total, postview_304_responses_total (Counter)
//   - postview_cache_errors_total{operation} (Counter)
//
// Rate limit (pkg/ratelimit):
//   - postview_upstream_requests_remaining (Gauge)
//   - postview_rate_limit_blocks_total, postview_rate_limit_throttles_total (Counter)
//
// Viewer (pkg/viewer):
//   - postview_events_total{event} (Counter)
//   - postview_fetch_cycles_total{result} (Counter): ok, error
//   - postview_stale_results_dropped_total (Counter)
//   - postview_page_changes_total (Counter)
//   - postview_detail_opens_total (Counter)
//
// Web (internal/web):
//   - postview_sessions_active (Gauge)
//   - postview_frames_sent_total (Counter)
//
// Example Prometheus Queries:
//
//	# Cache hit rate
//	sum(rate(postview_cache_hits_total[5m])) /
//	(sum(rate(postview_cache_hits_total[5m])) + sum(rate(postview_cache_misses_total[5m])))
//
//	# Failed fetch cycles
//	rate(postview_fetch_cycles_total{result="error"}[5m])
//
//	# P95 upstream latency
//	histogram_quantile(0.95, rate(postview_request_duration_seconds_bucket[5m]))
