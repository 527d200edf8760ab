package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/shellcache/pkg/cache"
	"github.com/Sternrassler/shellcache/pkg/registry"
)

// Registration tracks the worker currently serving and performs version
// takeovers. It is safe for concurrent use; Register calls are serialised.
type Registration struct {
	store    cache.Store
	registry registry.Registry
	origin   Origin
	logger   zerolog.Logger

	mu      sync.Mutex
	active  atomic.Pointer[Worker]
	waiting atomic.Pointer[Worker]
}

// Status is a snapshot of the registration.
type Status struct {
	ActiveVersion string   `json:"active_version,omitempty"`
	State         string   `json:"state"`
	WorkerID      string   `json:"worker_id,omitempty"`
	Waiting       string   `json:"waiting_version,omitempty"`
	Buckets       []string `json:"buckets"`

	Persisted *registry.Record `json:"persisted,omitempty"`
}

// NewRegistration creates a registration with no active worker.
func NewRegistration(store cache.Store, reg registry.Registry, origin Origin, logger zerolog.Logger) *Registration {
	return &Registration{
		store:    store,
		registry: reg,
		origin:   origin,
		logger:   logger,
	}
}

// Active returns the worker currently serving, or nil.
func (r *Registration) Active() *Worker { return r.active.Load() }

// Waiting returns the worker currently installing, or nil.
func (r *Registration) Waiting() *Worker { return r.waiting.Load() }

// Register installs and activates the version described by cfg.
//
// Registering the version that is already active is a no-op. If the
// persisted record names cfg.Version and its bucket exists, the bucket is
// adopted without installing again. A failed install or activation leaves
// the previous worker serving.
func (r *Registration) Register(ctx context.Context, cfg Config) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur := r.active.Load(); cur != nil && cur.Version() == cfg.Version {
		r.logger.Debug().Str("version", cfg.Version).Msg("Version already active")
		return cur, nil
	}

	w, err := New(cfg, r.store, r.origin, r.logger)
	if err != nil {
		return nil, err
	}

	rec, err := r.registry.Get(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load registration state, installing")
		rec = nil
	}

	if rec.IsActive(cfg.Version) {
		err := w.Adopt(ctx)
		switch {
		case err == nil:
			r.claim(ctx, w)
			return w, nil
		case !errors.Is(err, cache.ErrBucketNotFound):
			return nil, fmt.Errorf("adopt version %s: %w", cfg.Version, err)
		}
		r.logger.Info().Str("version", cfg.Version).Msg("Persisted version has no bucket, installing")
	}

	r.waiting.Store(w)
	defer r.waiting.CompareAndSwap(w, nil)

	if err := w.Install(ctx); err != nil {
		return nil, err
	}

	report, err := w.Activate(ctx)
	if err != nil {
		return nil, err
	}
	if report.Cleanup != nil {
		r.logger.Warn().Err(report.Cleanup).Str("version", cfg.Version).Msg("Activated with leftover buckets")
	}

	r.claim(ctx, w)
	return w, nil
}

// claim makes w the serving worker. Requests already in flight finish on
// the previous worker; every later request is served by w.
func (r *Registration) claim(ctx context.Context, w *Worker) {
	prev := r.active.Swap(w)
	if prev != nil && prev != w {
		prev.markRedundant()
		activeVersion.DeleteLabelValues(prev.Version())
	}
	activeVersion.WithLabelValues(w.Version()).Set(1)

	rec := &registry.Record{
		ActiveVersion: w.Version(),
		State:         w.State().String(),
		LastUpdate:    time.Now(),
	}
	if err := r.registry.Save(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Str("version", w.Version()).Msg("Failed to persist registration state")
	}

	event := r.logger.Info().Str("version", w.Version()).Str("worker_id", w.ID())
	if prev != nil {
		event = event.Str("previous_version", prev.Version())
	}
	event.Msg("Worker claimed clients")
}

// Status reports the active worker and the buckets present in the store.
func (r *Registration) Status(ctx context.Context) (*Status, error) {
	st := &Status{State: StateParsed.String()}

	if w := r.active.Load(); w != nil {
		st.ActiveVersion = w.Version()
		st.State = w.State().String()
		st.WorkerID = w.ID()
	}
	if w := r.waiting.Load(); w != nil {
		st.Waiting = w.Version()
	}

	buckets, err := r.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	st.Buckets = buckets

	rec, err := r.registry.Get(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load registration state")
	} else if rec.HasActive() {
		st.Persisted = rec
	}
	return st, nil
}

// ServeHTTP routes a client request through the active worker. Requests the
// worker does not intercept, and all requests while no worker is active,
// go to the origin unmodified.
func (r *Registration) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	resp, err := r.respond(req)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("Request failed")
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := rw.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	rw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(rw, resp.Body); err != nil {
		r.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("Client write interrupted")
	}
}

func (r *Registration) respond(req *http.Request) (*http.Response, error) {
	w := r.active.Load()
	if w == nil || !w.Intercepts(req) {
		return r.origin.Do(req)
	}

	resp, err := w.Respond(req)
	if errors.Is(err, ErrNotActive) {
		// Replaced between Load and Respond; the new worker takes the request.
		if next := r.active.Load(); next != nil && next != w {
			return next.Respond(req)
		}
	}
	return resp, err
}
