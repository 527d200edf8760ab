// Package registry persists which shell cache version is active.
// Several proxy replicas share one store, so the record lives in Redis and
// every replica agrees on the current version after a takeover.
package registry

import (
	"time"
)

// Redis keys for registration state storage.
const (
	RedisKeyActiveVersion = "shellcache:registration:active_version"
	RedisKeyState         = "shellcache:registration:state"
	RedisKeyLastUpdate    = "shellcache:registration:last_update"
)

// Record represents the persisted registration state.
type Record struct {
	// ActiveVersion is the bucket name of the version currently serving.
	// Empty when no version has ever activated.
	ActiveVersion string `json:"active_version"`

	// State is the lifecycle state of the active version (e.g., "activated").
	State string `json:"state"`

	// LastUpdate is the timestamp of the last lifecycle transition.
	LastUpdate time.Time `json:"last_update"`
}

// HasActive returns true if a version has been activated.
func (r *Record) HasActive() bool {
	return r != nil && r.ActiveVersion != ""
}

// IsActive returns true if the given version is the active one.
func (r *Record) IsActive(version string) bool {
	return r.HasActive() && r.ActiveVersion == version
}
