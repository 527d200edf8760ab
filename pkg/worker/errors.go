package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInstallFailed wraps any failure during installation.
	ErrInstallFailed = errors.New("install failed")

	// ErrActivateFailed wraps any failure during activation.
	ErrActivateFailed = errors.New("activate failed")

	// ErrInvalidState is returned when a lifecycle step runs out of order.
	ErrInvalidState = errors.New("invalid lifecycle state")

	// ErrNotActive is returned when a non-active worker is asked to respond.
	ErrNotActive = errors.New("worker not active")
)

// CleanupError reports stale buckets that could not be removed.
type CleanupError struct {
	// ListErr is set when the bucket names could not be enumerated.
	ListErr error

	// Failed maps bucket names to their deletion error.
	Failed map[string]error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	if e.ListErr != nil {
		return fmt.Sprintf("stale bucket cleanup: list buckets: %v", e.ListErr)
	}
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("stale bucket cleanup: %d failed (%s)", len(names), strings.Join(parts, "; "))
}

// Unwrap exposes every underlying failure to errors.Is/As.
func (e *CleanupError) Unwrap() []error {
	if e.ListErr != nil {
		return []error{e.ListErr}
	}
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
