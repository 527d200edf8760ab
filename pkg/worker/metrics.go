package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the worker lifecycle and fetch handling.
var (
	lifecycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shellcache_lifecycle_transitions_total",
		Help: "Total worker lifecycle transitions by target state",
	}, []string{"state"})

	installsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shellcache_installs_total",
		Help: "Total install attempts by result",
	}, []string{"result"}) // "success", "failure"

	bucketsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shellcache_buckets_deleted_total",
		Help: "Total stale buckets deleted during activation",
	})

	cleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shellcache_cleanup_failures_total",
		Help: "Total stale buckets that could not be deleted during activation",
	})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shellcache_fetches_total",
		Help: "Total intercepted requests by source",
	}, []string{"source"}) // "cache", "network", "passthrough"

	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shellcache_fetch_failures_total",
		Help: "Total network failures surfaced to clients",
	})

	activeVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shellcache_active_version_info",
		Help: "Set to 1 for the cache version currently serving",
	}, []string{"version"})
)
