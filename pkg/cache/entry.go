package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached storefront response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// URL is the request URL the response was fetched for
	URL string `json:"url,omitempty"`

	// Destination is the declared resource type of the request (script, style, ...)
	// or "shell" for entries written at install time
	Destination string `json:"destination,omitempty"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Size returns the number of body bytes held by the entry.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Age returns how long ago the entry was stored.
// Entries never expire; the age is reported for observability only.
func (e *Entry) Age() time.Duration {
	if e == nil || e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}
