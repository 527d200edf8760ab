// Package logging configures zerolog for the shell proxy.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ServiceName is attached to every log line as the "service" field.
const ServiceName = "shellcache"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()

	log.Logger = logger
	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger for one component of the proxy.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForVersion derives a logger scoped to one cache version.
func ForVersion(logger zerolog.Logger, version string) zerolog.Logger {
	return logger.With().Str("version", version).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - cache hit/miss with key and destination
//   - responses not stored (status, destination)
//   - stale bucket deletions
//
// Info: lifecycle
//   - install start/finish, activation, takeover ("claimed clients")
//   - registration state persisted
//   - server startup/shutdown, access log
//
// Warn: best-effort failures, traffic keeps flowing
//   - leftover buckets after activation
//   - failed Put on the miss path, failed store lookup
//   - network failures returned as 502
//
// Error: a version could not be brought up
//   - failed install or strict activation
//   - configuration errors
//
// Context Fields:
//   - component, service, version, worker_id
//   - key: cache key ("GET /assets/app.js")
//   - destination: Sec-Fetch-Dest value
//   - status_code, duration, bytes
