// Package precache fetches the storefront shell assets in parallel.
//
// Installing a cache version requires every shell asset to be present in the
// new bucket. The batch fetcher downloads all paths with a bounded worker
// pool and succeeds only when every asset was fetched; the first failure
// cancels the remaining work and fails the whole batch.
//
// Example usage:
//
//	fetcher := precache.NewBatchFetcher(originClient, precache.DefaultConfig())
//	entries, err := fetcher.FetchAll(ctx, []string{"/", "/index.html", "/manifest.json"})
//	if err != nil {
//		// installation fails, nothing is stored
//	}
//
// The batch fetcher:
//   - Spawns a worker pool (default 4 workers)
//   - Distributes paths across workers
//   - Converts each response into a cache entry
//   - Stops at the first failure
package precache
