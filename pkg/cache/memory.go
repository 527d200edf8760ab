package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps buckets in process memory.
// Entries are copied on the way in and out, matching the value semantics
// of the Redis store.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
	order   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memoryBucket),
	}
}

// Open returns the named bucket, creating it if needed.
func (s *MemoryStore) Open(_ context.Context, name string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	b := &memoryBucket{
		name:    name,
		entries: make(map[string]*Entry),
	}
	s.buckets[name] = b
	s.order = append(s.order, name)
	return b, nil
}

// Has reports whether the named bucket exists.
func (s *MemoryStore) Has(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[name]
	return ok, nil
}

// Keys lists bucket names in creation order.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

// Delete removes the named bucket and its entries.
func (s *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[name]
	if !ok {
		return false, nil
	}
	delete(s.buckets, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	b.mu.Lock()
	b.deleted = true
	b.entries = nil
	b.mu.Unlock()

	return true, nil
}

type memoryBucket struct {
	name    string
	mu      sync.RWMutex
	entries map[string]*Entry
	deleted bool
}

func (b *memoryBucket) Name() string { return b.name }

func (b *memoryBucket) Match(_ context.Context, key Key) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.deleted {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	entry, ok := b.entries[key.String()]
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("memory").Inc()
	return cloneEntry(entry), nil
}

func (b *memoryBucket) Put(_ context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deleted {
		CacheErrors.WithLabelValues("put").Inc()
		return ErrBucketNotFound
	}
	b.entries[key.String()] = cloneEntry(entry)
	recordPut(entry)
	return nil
}

func (b *memoryBucket) Delete(_ context.Context, key Key) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := key.String()
	if _, ok := b.entries[k]; !ok {
		return false, nil
	}
	delete(b.entries, k)
	return true, nil
}

func (b *memoryBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func cloneEntry(e *Entry) *Entry {
	c := *e
	c.Data = append([]byte(nil), e.Data...)
	c.Headers = e.Headers.Clone()
	return &c
}
