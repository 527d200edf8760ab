// Package cache provides the bucketed request/response store behind the
// storefront shell cache.
//
// A Store holds named buckets. Each bucket maps a request identity (method,
// path and query) to a stored response. Exactly one bucket is current at any
// time, named after the deployed cache version; every other bucket is stale
// and is removed when a new version activates.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create store and open the current bucket
//	store := cache.NewRedisStore(redisClient)
//	bucket, err := store.Open(ctx, "perfume-shop-v3")
//	if err != nil {
//		return err
//	}
//
//	// Look up a request
//	entry, err := bucket.Match(ctx, cache.KeyFromRequest(req))
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from origin
//	}
//
// # HTTP Response Caching
//
// Response bodies are single-consumption streams. ResponseToEntry reads the
// body, restores it on the response and returns an entry holding the second
// copy, so one copy is stored and the other returned to the caller.
//
//	if cache.IsStorable(resp) {
//		entry, err := cache.ResponseToEntry(resp)
//		if err != nil {
//			return err
//		}
//		if err := bucket.Put(ctx, key, entry); err != nil {
//			return err
//		}
//	}
//
// Entries never expire. A new fetch for the same key overwrites the previous
// entry, and entries disappear only when their bucket is deleted.
//
// # Metrics
//
//   - shellcache_hits_total - Bucket lookups that found an entry
//   - shellcache_misses_total - Bucket lookups that found nothing
//   - shellcache_entries_stored_total{destination} - Entries written
//   - shellcache_stored_bytes_total - Body bytes written
//   - shellcache_errors_total{operation} - Store operation errors
package cache
