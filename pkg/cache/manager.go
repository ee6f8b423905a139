package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss is returned for absent and expired keys.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored value does not decode.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores entries in Redis, each with a Redis TTL matching its
// Expires time.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewManager panics on a nil client.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the entry for key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, err := m.load(ctx, key.String())
	switch {
	case errors.Is(err, ErrCacheMiss):
		CacheMisses.Inc()
		return nil, err
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	// Redis normally evicts first; this covers clock skew and UpdateTTL races.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return entry, nil
}

func (m *Manager) load(ctx context.Context, redisKey string) (*Entry, error) {
	data, err := m.redis.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		m.logger.Warn().Err(err).Str("key", redisKey).Msg("Dropping undecodable cache entry")
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// Set stores entry until its Expires time. An already expired entry is not
// stored and is not an error.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	if entry.EndOfListing() {
		m.logger.Debug().Str("key", key.String()).Dur("ttl", ttl).Msg("Cached end of listing")
	}
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateTTL moves the expiry of a stored entry, as after a 304 carrying a
// new Expires header.
func (m *Manager) UpdateTTL(ctx context.Context, key Key, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

// Purge deletes every cached variant of a listing path: the full page and
// the fragments of all pages, filters and sort orders. It returns the number
// of keys removed.
func (m *Manager) Purge(ctx context.Context, path string) (int, error) {
	base := Key{Path: path}
	fragment := Key{Path: path, Fragment: true}
	patterns := []string{
		base.String(), base.String() + ":*",
		fragment.String(), fragment.String() + ":*",
	}

	removed := 0
	for _, pattern := range patterns {
		iter := m.redis.Scan(ctx, 0, escapePattern(pattern), 100).Iterator()
		for iter.Next(ctx) {
			n, err := m.redis.Del(ctx, iter.Val()).Result()
			if err != nil {
				CacheErrors.WithLabelValues("delete").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}
		if err := iter.Err(); err != nil {
			CacheErrors.WithLabelValues("scan").Inc()
			return removed, fmt.Errorf("redis scan: %w", err)
		}
	}

	m.logger.Info().Str("path", path).Int("removed", removed).Msg("Purged cached listing")
	return removed, nil
}

// escapePattern quotes glob characters in a key, leaving a trailing "*".
func escapePattern(pattern string) string {
	wildcard := strings.HasSuffix(pattern, ":*")
	if wildcard {
		pattern = strings.TrimSuffix(pattern, "*")
	}
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	pattern = r.Replace(pattern)
	if wildcard {
		pattern += "*"
	}
	return pattern
}
