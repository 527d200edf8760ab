// Package worker implements the shell cache lifecycle: install a versioned
// bucket with the storefront shell, answer GET requests cache-first, and
// remove buckets left over from previous versions on activation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/shellcache/pkg/cache"
	"github.com/Sternrassler/shellcache/pkg/logging"
	"github.com/Sternrassler/shellcache/pkg/precache"
)

// Origin is the network side of the worker.
type Origin interface {
	// Do forwards a request to the origin unmodified.
	Do(req *http.Request) (*http.Response, error)

	// Fetch GETs a shell asset, failing on anything but a success status.
	Fetch(ctx context.Context, path string) (*http.Response, error)
}

// ActivationReport describes the stale bucket cleanup of an activation.
type ActivationReport struct {
	Deleted []string
	Cleanup *CleanupError
}

// Worker owns one cache version.
type Worker struct {
	cfg    Config
	store  cache.Store
	origin Origin
	batch  *precache.BatchFetcher
	logger zerolog.Logger
	id     string

	mu          sync.RWMutex
	state       State
	bucket      cache.Bucket
	skipWaiting bool
}

// New creates a worker for the given version policy.
func New(cfg Config, store cache.Store, origin Origin, logger zerolog.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if origin == nil {
		return nil, errors.New("origin is required")
	}
	if cfg.Cacheable == nil {
		cfg.Cacheable = append([]Destination(nil), DefaultCacheable...)
	}

	id := uuid.NewString()
	batchCfg := precache.DefaultConfig()
	if cfg.PrecacheConcurrency > 0 {
		batchCfg.MaxConcurrency = cfg.PrecacheConcurrency
	}

	return &Worker{
		cfg:    cfg,
		store:  store,
		origin: origin,
		batch:  precache.NewBatchFetcher(origin, batchCfg),
		logger: logging.ForVersion(logger, cfg.Version).With().Str("worker_id", id).Logger(),
		id:     id,
		state:  StateParsed,
	}, nil
}

// ID returns the unique identifier of this worker instance.
func (w *Worker) ID() string { return w.id }

// Version returns the bucket name this worker owns.
func (w *Worker) Version() string { return w.cfg.Version }

// Config returns the worker's policy.
func (w *Worker) Config() Config { return w.cfg }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SkipWaiting marks the worker to activate as soon as it is installed.
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipWaiting = true
}

// SkipsWaiting reports whether SkipWaiting was called.
func (w *Worker) SkipsWaiting() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// transition moves the worker to next if it is currently in one of from.
func (w *Worker) transition(next State, from ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range from {
		if w.state == s {
			w.state = next
			lifecycleTransitionsTotal.WithLabelValues(next.String()).Inc()
			w.logger.Debug().Str("state", next.String()).Msg("Lifecycle transition")
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, w.state, next)
}

func (w *Worker) markRedundant() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRedundant {
		w.state = StateRedundant
		lifecycleTransitionsTotal.WithLabelValues(StateRedundant.String()).Inc()
		w.logger.Info().Msg("Worker is redundant")
	}
}

func (w *Worker) currentBucket() cache.Bucket {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bucket
}

// Install opens the version bucket and stores every shell asset in it.
// Assets are stored only once all of them were fetched; any failure aborts
// the install and leaves the worker redundant.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(StateInstalling, StateParsed); err != nil {
		return err
	}
	start := time.Now()

	w.logger.Info().
		Int("shell_assets", len(w.cfg.ShellAssets)).
		Msg("Installing cache version")

	if err := w.install(ctx); err != nil {
		installsTotal.WithLabelValues("failure").Inc()
		w.markRedundant()
		w.logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	if err := w.transition(StateInstalled, StateInstalling); err != nil {
		return err
	}
	installsTotal.WithLabelValues("success").Inc()

	// Take over without waiting for clients of the previous version.
	w.SkipWaiting()

	w.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("Cache version installed")
	return nil
}

func (w *Worker) install(ctx context.Context) error {
	existed, err := w.store.Has(ctx, w.cfg.Version)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}

	bucket, err := w.store.Open(ctx, w.cfg.Version)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}

	err = w.precache(ctx, bucket)
	if err != nil && !existed {
		// Drop the bucket this attempt created; a later install starts clean.
		if _, delErr := w.store.Delete(context.WithoutCancel(ctx), w.cfg.Version); delErr != nil {
			w.logger.Warn().Err(delErr).Msg("Failed to drop bucket of failed install")
		}
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.bucket = bucket
	w.mu.Unlock()
	return nil
}

func (w *Worker) precache(ctx context.Context, bucket cache.Bucket) error {
	keys := make([]cache.Key, len(w.cfg.ShellAssets))
	for i, path := range w.cfg.ShellAssets {
		key, err := cache.KeyForPath(path)
		if err != nil {
			return fmt.Errorf("shell asset %q: %w", path, err)
		}
		keys[i] = key
	}

	entries, err := w.batch.FetchAll(ctx, w.cfg.ShellAssets)
	if err != nil {
		return err
	}

	for i, path := range w.cfg.ShellAssets {
		if err := bucket.Put(ctx, keys[i], entries[path]); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
	}
	return nil
}

// Activate removes every bucket other than the worker's own.
// Deletions run concurrently and activation completes once all of them
// finish. Failed deletions are reported in the ActivationReport; with
// StrictCleanup they also fail the activation.
func (w *Worker) Activate(ctx context.Context) (*ActivationReport, error) {
	if err := w.transition(StateActivating, StateInstalled); err != nil {
		return nil, err
	}

	report := w.cleanup(ctx)
	if report.Cleanup != nil {
		cleanupFailuresTotal.Add(float64(len(report.Cleanup.Failed)))
		if w.cfg.StrictCleanup {
			w.markRedundant()
			w.logger.Error().Err(report.Cleanup).Msg("Activation failed")
			return report, fmt.Errorf("%w: %w", ErrActivateFailed, report.Cleanup)
		}
		w.logger.Warn().Err(report.Cleanup).Msg("Stale bucket cleanup incomplete, continuing")
	}

	if err := w.transition(StateActivated, StateActivating); err != nil {
		return report, err
	}

	w.logger.Info().
		Strs("deleted", report.Deleted).
		Msg("Cache version activated")
	return report, nil
}

func (w *Worker) cleanup(ctx context.Context) *ActivationReport {
	report := &ActivationReport{}

	names, err := w.store.Keys(ctx)
	if err != nil {
		report.Cleanup = &CleanupError{ListErr: err}
		return report
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
		g      errgroup.Group
	)
	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		name := name
		g.Go(func() error {
			_, err := w.store.Delete(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[name] = err
				return err
			}
			report.Deleted = append(report.Deleted, name)
			bucketsDeletedTotal.Inc()
			w.logger.Debug().Str("bucket", name).Msg("Deleted stale bucket")
			return nil
		})
	}
	// Every failure is collected above; Wait only blocks for completion.
	_ = g.Wait()

	if len(failed) > 0 {
		report.Cleanup = &CleanupError{Failed: failed}
	}
	return report
}

// Adopt takes over a bucket installed by an earlier process running the
// same version, skipping install and activation.
func (w *Worker) Adopt(ctx context.Context) error {
	has, err := w.store.Has(ctx, w.cfg.Version)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !has {
		return fmt.Errorf("%w: %s", cache.ErrBucketNotFound, w.cfg.Version)
	}
	bucket, err := w.store.Open(ctx, w.cfg.Version)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}

	if err := w.transition(StateActivated, StateParsed); err != nil {
		return err
	}
	w.mu.Lock()
	w.bucket = bucket
	w.skipWaiting = true
	w.mu.Unlock()

	w.logger.Info().Msg("Adopted installed cache version")
	return nil
}

// Intercepts reports whether the worker handles a request at all.
// Only GET requests are intercepted; everything else goes to the network
// untouched.
func (w *Worker) Intercepts(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == ""
}

// Respond answers an intercepted request cache-first.
//
// A stored response is returned as is, without any network round trip or
// freshness check. On a miss the request goes to the network; successful
// responses for cacheable destinations are stored under the request's key
// and the other copy returned. Network failures are returned unchanged.
func (w *Worker) Respond(req *http.Request) (*http.Response, error) {
	if !w.Intercepts(req) {
		fetchesTotal.WithLabelValues("passthrough").Inc()
		return w.network(req)
	}

	if w.State() != StateActivated {
		return nil, ErrNotActive
	}
	bucket := w.currentBucket()
	ctx := req.Context()
	key := cache.KeyFromRequest(req)

	entry, err := bucket.Match(ctx, key)
	switch {
	case err == nil:
		fetchesTotal.WithLabelValues("cache").Inc()
		w.logger.Debug().
			Str("key", key.String()).
			Bool("cache_hit", true).
			Dur("age", entry.Age()).
			Msg("Serving from cache")
		return cache.EntryToResponse(entry, req), nil
	case !errors.Is(err, cache.ErrCacheMiss):
		w.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed, using network")
	}

	dest := DestinationOf(req)
	cacheable := w.cfg.isCacheable(dest)

	resp, err := w.network(identityRequest(req, cacheable))
	if err != nil {
		return nil, err
	}
	fetchesTotal.WithLabelValues("network").Inc()

	if !cacheable || !cache.IsStorable(resp) {
		w.logger.Debug().
			Str("key", key.String()).
			Int("status_code", resp.StatusCode).
			Str("destination", string(dest)).
			Msg("Response not cached")
		return resp, nil
	}

	stored, err := cache.ResponseToEntry(resp)
	if err != nil {
		resp.Body.Close()
		fetchFailuresTotal.Inc()
		return nil, fmt.Errorf("read origin response: %w", err)
	}
	stored.Destination = string(dest)
	stored.URL = req.URL.String()

	if err := bucket.Put(ctx, key, stored); err != nil {
		w.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache response")
	} else {
		w.logger.Debug().
			Str("key", key.String()).
			Str("destination", string(dest)).
			Int("bytes", stored.Size()).
			Msg("Cached response")
	}

	return resp, nil
}

// identityRequest drops the client's Accept-Encoding from requests whose
// response may be stored. The key ignores request headers, so the stored
// copy has to be decoded; the transport negotiates and decompresses gzip
// on its own when the header is absent.
func identityRequest(req *http.Request, cacheable bool) *http.Request {
	if !cacheable || req.Header.Get("Accept-Encoding") == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Del("Accept-Encoding")
	return out
}

func (w *Worker) network(req *http.Request) (*http.Response, error) {
	resp, err := w.origin.Do(req)
	if err != nil {
		fetchFailuresTotal.Inc()
		w.logger.Warn().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Network fetch failed")
		return nil, err
	}
	return resp, nil
}
