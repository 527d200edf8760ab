package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks bucket lookups that found an entry
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellcache_hits_total",
			Help: "Total number of shell cache hits",
		},
		[]string{"store"}, // "redis", "memory"
	)

	// CacheMisses tracks bucket lookups that found nothing
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellcache_misses_total",
			Help: "Total number of shell cache misses",
		},
		[]string{"store"},
	)

	// EntriesStored tracks entries written by resource destination
	EntriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellcache_entries_stored_total",
			Help: "Total number of entries written to shell cache buckets",
		},
		[]string{"destination"}, // "script", "style", "image", "manifest", "shell"
	)

	// StoredBytes tracks body bytes written to buckets
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shellcache_stored_bytes_total",
			Help: "Total number of body bytes written to shell cache buckets",
		},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellcache_errors_total",
			Help: "Total number of shell cache store errors",
		},
		[]string{"operation"}, // "open", "match", "put", "keys", "delete"
	)
)

func recordPut(entry *Entry) {
	destination := entry.Destination
	if destination == "" {
		destination = "unknown"
	}
	EntriesStored.WithLabelValues(destination).Inc()
	StoredBytes.Add(float64(entry.Size()))
}
