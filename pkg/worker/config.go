package worker

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the compiled-in cache policy of one deployed version.
type Config struct {
	// Version names the current bucket. It must change on every deploy that
	// alters the shell asset list or the caching policy, so that the previous
	// bucket is recognised as stale and removed on activation.
	Version string

	// ShellAssets are fetched and stored at install time, in order.
	ShellAssets []string

	// Cacheable lists destinations stored opportunistically on a cache miss.
	Cacheable []Destination

	// StrictCleanup fails activation when a stale bucket cannot be deleted.
	// By default cleanup is best-effort: failures are logged and reported.
	StrictCleanup bool

	// PrecacheConcurrency bounds parallel shell fetches during install.
	PrecacheConcurrency int
}

// DefaultConfig returns the storefront policy for a version.
func DefaultConfig(version string) Config {
	return Config{
		Version:             version,
		ShellAssets:         []string{"/", "/index.html", "/manifest.json"},
		Cacheable:           append([]Destination(nil), DefaultCacheable...),
		PrecacheConcurrency: 4,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("version is required")
	}
	for _, p := range c.ShellAssets {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("shell asset %q must be an absolute path", p)
		}
	}
	if c.PrecacheConcurrency < 0 {
		return fmt.Errorf("precache concurrency must be >= 0 (got %d)", c.PrecacheConcurrency)
	}
	return nil
}

func (c Config) isCacheable(d Destination) bool {
	for _, allowed := range c.Cacheable {
		if allowed == d {
			return true
		}
	}
	return false
}
