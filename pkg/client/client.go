// Package client provides the HTTP client that talks to the storefront origin
// on behalf of the shell cache.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for origin requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shellcache_upstream_requests_total",
		Help: "Total origin requests by method and status",
	}, []string{"method", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shellcache_upstream_duration_seconds",
		Help:    "Origin request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})
)

// Hop-by-hop headers are meaningful only for a single connection and are
// never forwarded to the origin.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client fetches resources from the storefront origin.
type Client struct {
	httpClient *http.Client
	origin     *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Origin is the base URL of the storefront (e.g., "https://shop.example").
	Origin string

	// UserAgent is sent on requests that carry none.
	UserAgent string

	// Timeout bounds a single origin request. Zero means no timeout.
	Timeout time.Duration

	// Retry applies to shell fetches only; pass-through requests never retry.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:    origin,
		UserAgent: "shellcache/1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new origin client.
func New(cfg Config) (*Client, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("origin must be an http(s) URL (got %q)", cfg.Origin)
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("origin must include a host (got %q)", cfg.Origin)
	}

	logger := log.With().Str("component", "origin-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		origin: origin,
		config: cfg,
		logger: logger,
	}, nil
}

// Origin returns the origin base URL.
func (c *Client) Origin() *url.URL {
	u := *c.origin
	return &u
}

// resolve maps a request path and query onto the origin.
func (c *Client) resolve(path, rawQuery string) string {
	u := *c.origin
	u.Path = strings.TrimSuffix(c.origin.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u.String()
}

// Do forwards an incoming request to the origin and returns the origin's
// response unchanged. Method, path, query, headers and body are carried over.
// Transport failures are returned as *UpstreamError with class network;
// non-success statuses are not errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	target := c.resolve(req.URL.Path, req.URL.RawQuery)

	out, err := http.NewRequestWithContext(req.Context(), req.Method, target, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	out.ContentLength = req.ContentLength
	if out.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		out.Header.Set("User-Agent", c.config.UserAgent)
	}

	return c.send(out)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}()

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Executing origin request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(req.Method, "network_error").Inc()
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Origin request failed")
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			URL:        req.URL.String(),
			Err:        err,
		}
	}

	upstreamRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// Fetch performs a GET for a shell asset path. Only success statuses are
// accepted: anything else is returned as *UpstreamError. Server and network
// failures are retried according to Config.Retry.
func (c *Client) Fetch(ctx context.Context, path string) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse asset path %q: %w", path, err)
	}
	target := c.resolve(ref.Path, ref.RawQuery)

	var resp *http.Response
	err = retryWithBackoff(ctx, c.config.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return &UpstreamError{ErrorClass: ErrorClassClient, URL: target, Err: err}
		}
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		r, err := c.send(req)
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			r.Body.Close()
			return &UpstreamError{
				StatusCode: r.StatusCode,
				ErrorClass: classifyStatus(r.StatusCode),
				URL:        target,
				RetryAfter: parseRetryAfter(r.Header.Get("Retry-After"), time.Now()),
			}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
