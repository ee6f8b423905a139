// Package logging configures the zerolog logger shared by the storefront
// client, the loader and the shopfeed CLI.
package logging

import (
	"fmt"
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

// Component names used in the "component" field.
const (
	ComponentClient   = "storefront-client"
	ComponentLoader   = "loader"
	ComponentCache    = "cache"
	ComponentTheme    = "theme"
	ComponentShopfeed = "shopfeed"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. An unknown level falls back
// to info; use ValidateLevel to reject it earlier.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. The empty level is info.
func ParseLevel(level LogLevel) (zerolog.Level, error) {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// ValidateLevel reports whether level is one Setup understands.
func ValidateLevel(level string) error {
	_, err := ParseLevel(LogLevel(level))
	return err
}

// NewLogger creates a logger carrying the component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request and per-cycle detail
//   - Fetch cycle start, page URL, items appended
//   - Cache hit/miss, conditional requests, ETags
//   - Skipped loads (already loading or exhausted)
//
// Info: lifecycle events
//   - Listing exhausted (short or empty page)
//   - Crawl start/finish, metrics server startup/shutdown
//   - Theme changes
//
// Warn: transient failures the loader survives
//   - Listing page fetch failed (retry on next scroll)
//   - Retry exhausted, cache errors
//
// Error: failures that stop a command
//   - Configuration errors
//   - Crawl aborted
//
// Context Fields:
//   - component: see Component* constants
//   - page, url, items, page_size: fetch cycle
//   - endpoint, status, error_class: storefront requests
//   - etag, ttl: cache
