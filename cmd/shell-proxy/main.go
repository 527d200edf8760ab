// Command shell-proxy serves the storefront through a versioned,
// cache-first shell cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/shellcache/pkg/cache"
	"github.com/Sternrassler/shellcache/pkg/client"
	"github.com/Sternrassler/shellcache/pkg/config"
	"github.com/Sternrassler/shellcache/pkg/logging"
	"github.com/Sternrassler/shellcache/pkg/registry"
	"github.com/Sternrassler/shellcache/pkg/server"
	"github.com/Sternrassler/shellcache/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("shell-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Shell proxy stopped")
	}
}

// app is the wired proxy.
type app struct {
	handler      http.Handler
	registration *worker.Registration
	workerConfig worker.Config
	close        func() error
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.AdminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN not set, status and update endpoints are disabled")
	}

	if _, err := a.registration.Register(ctx, a.workerConfig); err != nil {
		// The proxy still passes traffic through; /_shellcache/ready reports the gap.
		logger.Error().Err(err).Str("version", cfg.CacheVersion).Msg("Initial registration failed")
	}

	srv := &http.Server{Addr: cfg.Addr(), Handler: a.handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("origin", cfg.OriginURL).
			Str("version", cfg.CacheVersion).
			Str("store", cfg.CacheStore).
			Msg("Starting shell proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// setup wires store, registry, origin client and router from cfg.
func setup(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	store, reg, ping, closeStore, err := newBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	originClient, err := client.New(clientConfig(cfg))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("create origin client: %w", err)
	}

	registration := worker.NewRegistration(store, reg, originClient, logging.NewLogger("worker"))
	wcfg := workerConfig(cfg)

	srv := server.New(server.Options{
		Registration: registration,
		Worker:       wcfg,
		Ping:         ping,
		AdminToken:   cfg.AdminToken,
		Logger:       logger,
	})

	return &app{
		handler:      srv,
		registration: registration,
		workerConfig: wcfg,
		close:        closeStore,
	}, nil
}

func newBackends(ctx context.Context, cfg config.Config) (cache.Store, registry.Registry, server.Pinger, func() error, error) {
	if cfg.CacheStore == config.StoreMemory {
		noop := func() error { return nil }
		return cache.NewMemoryStore(), registry.NewMemoryRegistry(), nil, noop, nil
	}

	opts, err := redisOptions(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return cache.NewRedisStore(rdb),
		registry.NewRedisRegistry(rdb, logging.NewLogger("registry")),
		ping,
		rdb.Close,
		nil
}

// redisOptions accepts either a redis:// URL or a plain host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func clientConfig(cfg config.Config) client.Config {
	c := client.DefaultConfig(cfg.OriginURL)
	c.UserAgent = cfg.UserAgent
	c.Timeout = cfg.UpstreamTimeout
	c.Retry.MaxAttempts = cfg.InstallAttempts
	return c
}

func workerConfig(cfg config.Config) worker.Config {
	w := worker.DefaultConfig(cfg.CacheVersion)
	w.ShellAssets = append([]string(nil), cfg.ShellAssets...)
	w.StrictCleanup = cfg.StrictCleanup
	w.PrecacheConcurrency = cfg.PrecacheConcurrency
	return w
}
