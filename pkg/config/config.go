// Package config loads shopfeed settings from SHOPFEED_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/loader"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config holds every shopfeed setting.
type Config struct {
	BaseURL     string        `env:"SHOPFEED_BASE_URL"     envDefault:"http://localhost:8000"`
	ListingPath string        `env:"SHOPFEED_LISTING_PATH" envDefault:"/products/"`
	UserAgent   string        `env:"SHOPFEED_USER_AGENT"   envDefault:"shopfeed/1.0"`
	Timeout     time.Duration `env:"SHOPFEED_TIMEOUT"      envDefault:"30s"`
	MaxRetries  int           `env:"SHOPFEED_MAX_RETRIES"  envDefault:"1"`

	// MaxQuantity caps cart quantities sent by the client.
	MaxQuantity int `env:"SHOPFEED_MAX_QUANTITY" envDefault:"10"`

	// RedisAddr enables the fragment cache when set.
	RedisAddr string `env:"SHOPFEED_REDIS_ADDR"`

	LogLevel  string `env:"SHOPFEED_LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"SHOPFEED_LOG_PRETTY" envDefault:"false"`

	PageSize         int           `env:"SHOPFEED_PAGE_SIZE"         envDefault:"12"`
	Threshold        float64       `env:"SHOPFEED_THRESHOLD"         envDefault:"500"`
	ThrottleInterval time.Duration `env:"SHOPFEED_THROTTLE_INTERVAL" envDefault:"200ms"`

	// MetricsAddr serves /health and /metrics during a crawl when set.
	MetricsAddr string `env:"SHOPFEED_METRICS_ADDR"`

	ThemeDB string `env:"SHOPFEED_THEME_DB" envDefault:"shopfeed.db"`

	// OTelEndpoint enables OTLP/HTTP trace export when set.
	OTelEndpoint string `env:"SHOPFEED_OTEL_ENDPOINT"`
}

// Parse reads the environment without validating it, so callers can apply
// overrides first.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and URLs.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("SHOPFEED_BASE_URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("SHOPFEED_BASE_URL: want an absolute http(s) url, got %q", c.BaseURL))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("SHOPFEED_USER_AGENT: must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("SHOPFEED_TIMEOUT: must be positive, got %s", c.Timeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("SHOPFEED_MAX_RETRIES: must be at least 1, got %d", c.MaxRetries))
	}
	if c.MaxQuantity < 1 {
		errs = append(errs, fmt.Errorf("SHOPFEED_MAX_QUANTITY: must be at least 1, got %d", c.MaxQuantity))
	}
	if err := logging.ValidateLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("SHOPFEED_LOG_LEVEL: %w", err))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("SHOPFEED_PAGE_SIZE: must be at least 1, got %d", c.PageSize))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("SHOPFEED_THRESHOLD: must not be negative, got %g", c.Threshold))
	}
	if c.ThrottleInterval <= 0 {
		errs = append(errs, fmt.Errorf("SHOPFEED_THROTTLE_INTERVAL: must be positive, got %s", c.ThrottleInterval))
	}

	return errors.Join(errs...)
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Redis returns a Redis client for RedisAddr, or nil when the cache is off.
func (c Config) Redis() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.RedisAddr})
}

// Client returns the storefront client settings. rdb may be nil.
func (c Config) Client(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.BaseURL, c.UserAgent)
	cfg.Redis = rdb
	cfg.Timeout = c.Timeout
	cfg.MaxRetries = c.MaxRetries
	cfg.MaxQuantity = c.MaxQuantity
	return cfg
}

// Loader returns loader settings for a listing URL.
func (c Config) Loader(pageURL string, hasMore bool) loader.Config {
	cfg := loader.DefaultConfig(pageURL, hasMore)
	cfg.PageSize = c.PageSize
	cfg.Threshold = c.Threshold
	cfg.ThrottleInterval = c.ThrottleInterval
	return cfg
}
