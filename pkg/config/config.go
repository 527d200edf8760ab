// Package config loads the proxy configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds the shell-proxy configuration.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// OriginURL is the storefront origin every request is forwarded to.
	OriginURL string `env:"ORIGIN_URL,required"`

	// CacheStore selects the bucket backend: "redis" or "memory".
	CacheStore string `env:"CACHE_STORE" envDefault:"redis"`
	RedisURL   string `env:"REDIS_URL" envDefault:"localhost:6379"`

	// CacheVersion names the bucket of this deploy. Bump it whenever the
	// shell or the caching policy changes.
	CacheVersion string   `env:"CACHE_VERSION" envDefault:"perfume-shop-v1"`
	ShellAssets  []string `env:"SHELL_ASSETS" envSeparator:"," envDefault:"/,/index.html,/manifest.json"`

	StrictCleanup       bool          `env:"STRICT_CLEANUP" envDefault:"false"`
	PrecacheConcurrency int           `env:"PRECACHE_CONCURRENCY" envDefault:"4"`
	InstallAttempts     int           `env:"INSTALL_ATTEMPTS" envDefault:"3"`
	UpstreamTimeout     time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UserAgent           string        `env:"USER_AGENT" envDefault:"shellcache/1.0"`

	// AdminToken is the bearer token for /_shellcache/status and
	// /_shellcache/update. Empty disables both.
	AdminToken string `env:"ADMIN_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	assets := cfg.ShellAssets[:0]
	for _, a := range cfg.ShellAssets {
		if a = strings.TrimSpace(a); a != "" {
			assets = append(assets, a)
		}
	}
	cfg.ShellAssets = assets
	cfg.CacheStore = strings.ToLower(strings.TrimSpace(cfg.CacheStore))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.OriginURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("ORIGIN_URL: %w", err))
	case (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = append(errs, fmt.Errorf("ORIGIN_URL must be an absolute http(s) URL (got %q)", c.OriginURL))
	}

	if c.CacheStore != StoreRedis && c.CacheStore != StoreMemory {
		errs = append(errs, fmt.Errorf("CACHE_STORE must be %q or %q (got %q)", StoreRedis, StoreMemory, c.CacheStore))
	}
	if strings.TrimSpace(c.CacheVersion) == "" {
		errs = append(errs, errors.New("CACHE_VERSION must not be empty"))
	}
	for _, a := range c.ShellAssets {
		if !strings.HasPrefix(a, "/") {
			errs = append(errs, fmt.Errorf("SHELL_ASSETS entry %q must start with /", a))
		}
	}
	if c.PrecacheConcurrency < 1 {
		errs = append(errs, fmt.Errorf("PRECACHE_CONCURRENCY must be >= 1 (got %d)", c.PrecacheConcurrency))
	}
	if c.InstallAttempts < 1 {
		errs = append(errs, fmt.Errorf("INSTALL_ATTEMPTS must be >= 1 (got %d)", c.InstallAttempts))
	}
	if c.UpstreamTimeout < 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must not be negative (got %s)", c.UpstreamTimeout))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
