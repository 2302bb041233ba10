package challenge

import (
	"context"
	"log/slog"
	"sync"
)

// Cache persists generated configs keyed by date.
//
// Implementations return ok=false for a missing entry. A returned entry is
// not trusted: Loader re-validates it against the requested date.
type Cache interface {
	Get(ctx context.Context, date string) (cfg Config, ok bool, err error)
	Put(ctx context.Context, cfg Config) error
}

// Loader resolves a date to a Config through an optional cache.
type Loader struct {
	Cache  Cache
	Logger *slog.Logger
}

// Load returns the challenge for date. Malformed dates fail with
// ErrInvalidDateFormat. Cache failures and stale or corrupt entries are
// treated as misses and never fail the load.
func (l *Loader) Load(ctx context.Context, date string) (Config, error) {
	if err := ValidateDate(date); err != nil {
		return Config{}, err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if l.Cache != nil {
		cached, ok, err := l.Cache.Get(ctx, date)
		switch {
		case err != nil:
			logger.Warn("challenge cache read failed", "date", date, "err", err)
		case !ok:
		case cached.Date != date:
			logger.Debug("ignoring cached challenge for another date", "date", date, "cached_date", cached.Date)
		case cached.Validate() != nil:
			logger.Warn("ignoring invalid cached challenge", "date", date, "err", cached.Validate())
		default:
			return cached, nil
		}
	}

	cfg, err := Generate(date)
	if err != nil {
		return Config{}, err
	}
	if l.Cache != nil {
		if err := l.Cache.Put(ctx, cfg); err != nil {
			logger.Warn("challenge cache write failed", "date", date, "err", err)
		}
	}
	return cfg, nil
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Config
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Config)}
}

func (c *MemoryCache) Get(_ context.Context, date string) (Config, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[date]
	return cfg, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cfg.Date] = cfg
	return nil
}
