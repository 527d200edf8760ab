package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the bucket
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrBucketNotFound indicates a bucket was deleted while still in use
	ErrBucketNotFound = errors.New("bucket not found")
)

// Store is the set of named buckets shared by every handler.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open returns the bucket with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Bucket, error)

	// Has reports whether a bucket with the given name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Keys lists bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a bucket and every entry in it.
	// It reports whether the bucket existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Bucket maps request keys to stored responses.
type Bucket interface {
	Name() string

	// Match returns the entry stored for key, or ErrCacheMiss.
	Match(ctx context.Context, key Key) (*Entry, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry *Entry) error

	// Delete removes a single entry and reports whether it existed.
	Delete(ctx context.Context, key Key) (bool, error)

	// Keys lists the key strings of all entries.
	Keys(ctx context.Context) ([]string, error)
}
