package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents 429 Too Many Requests.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// UpstreamError represents a failed origin request with additional context.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	URL        string
	Err        error

	// RetryAfter is the delay the origin asked for, if any.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("origin %s error (status %d) for %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("origin %s error (status %d) for %s",
		e.ErrorClass, e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-success status code to an error class.
func classifyStatus(status int) ErrorClass {
	if status == http.StatusTooManyRequests {
		return ErrorClassThrottled
	}
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// classOf extracts the error class from an error chain.
// Errors that are not UpstreamErrors are treated as network failures.
func classOf(err error) ErrorClass {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.ErrorClass
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx errors will not change on retry
		return false
	case ErrorClassServer, ErrorClassThrottled:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// retryAfterOf returns the delay requested by the origin for err, or zero.
func retryAfterOf(err error) time.Duration {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After value given either in seconds or as
// an HTTP date. Invalid or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
