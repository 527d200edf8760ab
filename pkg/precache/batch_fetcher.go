package precache

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/shellcache/pkg/cache"
)

// ShellDestination labels entries written at install time.
const ShellDestination = "shell"

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches
	MaxConcurrency int
	// Timeout per asset fetch, retries included
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// AssetFetcher fetches a single shell asset. Implementations return an error
// for anything but a success response.
type AssetFetcher interface {
	Fetch(ctx context.Context, path string) (*http.Response, error)
}

// AssetResult represents the result of fetching a single asset
type AssetResult struct {
	Path  string
	Entry *cache.Entry
	Error error
}

// BatchFetcher handles parallel fetching of shell assets
type BatchFetcher struct {
	fetcher AssetFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher AssetFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every path in parallel and returns path -> entry.
// It returns an error, and no entries, if any single fetch fails.
func (bf *BatchFetcher) FetchAll(ctx context.Context, paths []string) (map[string]*cache.Entry, error) {
	start := time.Now()
	results := make(map[string]*cache.Entry, len(paths))
	if len(paths) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := bf.config.MaxConcurrency
	if workers > len(paths) {
		workers = len(paths)
	}

	log.Debug().
		Int("assets", len(paths)).
		Int("workers", workers).
		Msg("Starting shell precache")

	pathQueue := make(chan string, len(paths))
	for _, p := range paths {
		pathQueue <- p
	}
	close(pathQueue)

	assetResults := make(chan AssetResult, len(paths))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pathQueue, assetResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(assetResults)
	}()

	var firstErr error
	for result := range assetResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch %s: %w", result.Path, result.Error)
				cancel()
			}
			continue
		}
		results[result.Path] = result.Entry
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("fetched", len(results)).
			Int("total", len(paths)).
			Msg("Shell precache failed")
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("precache interrupted: %w", err)
	}

	// Duplicate paths collapse into one entry
	if len(results) != countUnique(paths) {
		return nil, fmt.Errorf("precache incomplete: %d/%d assets", len(results), countUnique(paths))
	}

	log.Info().
		Int("assets", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Shell precache complete")

	return results, nil
}

// worker processes paths from the queue
func (bf *BatchFetcher) worker(ctx context.Context, pathQueue <-chan string, results chan<- AssetResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for path := range pathQueue {
		if err := ctx.Err(); err != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("assets_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		entry, err := bf.fetchOne(ctx, path)
		results <- AssetResult{Path: path, Entry: entry, Error: err}
		if err != nil {
			return
		}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("assets_processed", processed).
			Msg("Worker completed")
	}
}

func (bf *BatchFetcher) fetchOne(ctx context.Context, path string) (*cache.Entry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	resp, err := bf.fetcher.Fetch(fetchCtx, path)
	if err != nil {
		return nil, err
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, err
	}
	entry.Destination = ShellDestination
	return entry, nil
}

func countUnique(paths []string) int {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	return len(seen)
}
