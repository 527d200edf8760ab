package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/shellcache/internal/testutil"
	"github.com/Sternrassler/shellcache/pkg/cache"
	"github.com/Sternrassler/shellcache/pkg/client"
)

type harness struct {
	origin *testutil.MockOrigin
	client *client.Client
	store  *cache.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	origin := testutil.NewStorefrontOrigin()
	t.Cleanup(origin.Close)

	cfg := client.DefaultConfig(origin.URL())
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	c, err := client.New(cfg)
	require.NoError(t, err)
	c.SetHTTPClient(origin.Client())

	return &harness{
		origin: origin,
		client: c,
		store:  cache.NewMemoryStore(),
	}
}

func (h *harness) newWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	w, err := New(cfg, h.store, h.client, zerolog.Nop())
	require.NoError(t, err)
	return w
}

// activeWorker installs and activates a worker for version.
func (h *harness) activeWorker(t *testing.T, version string) *Worker {
	t.Helper()
	w := h.newWorker(t, DefaultConfig(version))
	require.NoError(t, w.Install(context.Background()))
	_, err := w.Activate(context.Background())
	require.NoError(t, err)
	return w
}

func (h *harness) bucketKeys(t *testing.T, version string) []string {
	t.Helper()
	bucket, err := h.store.Open(context.Background(), version)
	require.NoError(t, err)
	keys, err := bucket.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func (h *harness) openBuckets(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := h.store.Open(context.Background(), name)
		require.NoError(t, err)
	}
}

func getRequest(path string, dest Destination) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if dest != "" {
		req.Header.Set(HeaderFetchDest, string(dest))
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// faultyStore fails deletion of selected buckets.
type faultyStore struct {
	cache.Store

	mu        sync.Mutex
	failNames map[string]error
	listErr   error
	matchErr  error
}

func newFaultyStore(inner cache.Store) *faultyStore {
	return &faultyStore{Store: inner, failNames: make(map[string]error)}
}

func (s *faultyStore) failDelete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNames[name] = errors.New("connection reset")
}

func (s *faultyStore) Keys(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.Keys(ctx)
}

func (s *faultyStore) Open(ctx context.Context, name string) (cache.Bucket, error) {
	b, err := s.Store.Open(ctx, name)
	if err != nil || s.matchErr == nil {
		return b, err
	}
	return &faultyBucket{Bucket: b, matchErr: s.matchErr}, nil
}

// faultyBucket fails every lookup with matchErr.
type faultyBucket struct {
	cache.Bucket
	matchErr error
}

func (b *faultyBucket) Match(context.Context, cache.Key) (*cache.Entry, error) {
	return nil, b.matchErr
}

// counterValue reads the current value of a counter.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func (s *faultyStore) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	err := s.failNames[name]
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.Store.Delete(ctx, name)
}

func postRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
