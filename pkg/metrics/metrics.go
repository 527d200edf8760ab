// Package metrics exposes the Prometheus registry shared by the shell cache.
// Metrics are defined in their respective packages (cache, client, worker)
// and registered through promauto on the default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registerer used by every package.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the gathered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - shellcache_hits_total{store} (Counter): Bucket lookups answered from the store
//   - shellcache_misses_total{store} (Counter): Bucket lookups with no entry
//   - shellcache_entries_stored_total{destination} (Counter): Entries written by destination
//   - shellcache_stored_bytes_total (Counter): Response bytes written to buckets
//   - shellcache_errors_total{operation} (Counter): Store operation errors
//
// Origin Metrics (pkg/client):
//   - shellcache_upstream_requests_total{method, status} (Counter): Origin requests by status
//   - shellcache_upstream_duration_seconds{method} (Histogram): Origin request duration
//   - shellcache_upstream_retries_total{error_class} (Counter): Shell fetch retries
//   - shellcache_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - shellcache_upstream_retry_exhausted_total{error_class} (Counter): Shell fetches that ran out of attempts
//
// Lifecycle Metrics (pkg/worker):
//   - shellcache_lifecycle_transitions_total{state} (Counter): Worker state transitions
//   - shellcache_installs_total{result} (Counter): Installs by result
//   - shellcache_buckets_deleted_total (Counter): Stale buckets removed on activation
//   - shellcache_cleanup_failures_total (Counter): Stale buckets that survived activation
//   - shellcache_fetches_total{source} (Counter): Intercepted requests by source (cache, network, passthrough)
//   - shellcache_fetch_failures_total (Counter): Network failures returned to clients
//   - shellcache_active_version_info{version} (Gauge): 1 for the version serving
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(shellcache_fetches_total{source="cache"}[5m])) /
//   sum(rate(shellcache_fetches_total{source=~"cache|network"}[5m]))
//
//   # Leftover buckets after a deploy
//   increase(shellcache_cleanup_failures_total[1h]) > 0
//
//   # P95 Origin Latency
//   histogram_quantile(0.95, rate(shellcache_upstream_duration_seconds_bucket[5m]))
