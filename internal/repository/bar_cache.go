package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/cache"
	"ictbot/pkg/logger"
)

const barCachePrefix = "bars"

// BarCache implements HistoricalBarCache on a cache.Service. Entries are keyed
// by md5(symbol_timeframe_count) and go stale after maxAge.
type BarCache struct {
	cache  cache.Service
	maxAge time.Duration
	now    func() time.Time
	l      *logger.Logger
}

func NewBarCache(c cache.Service, maxAge time.Duration, lgr *logger.Logger) *BarCache {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &BarCache{cache: c, maxAge: maxAge, now: time.Now, l: lgr}
}

// BarCacheKey is the storage key for a bar set.
func BarCacheKey(symbol string, tf domrepo.Timeframe, count int) string {
	return cache.GenerateKey(barCachePrefix, cache.HashKey(fmt.Sprintf("%s_%s_%d", symbol, tf, count)))
}

func (c *BarCache) Load(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) (*domrepo.CachedBars, bool, error) {
	var entry domrepo.CachedBars
	err := c.cache.Get(ctx, BarCacheKey(symbol, tf, count), &entry)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cached bars: %w", err)
	}

	age := c.now().Sub(entry.CreatedAt)
	if age > c.maxAge {
		c.l.Debug("bar cache entry stale",
			logger.String("symbol", symbol),
			logger.String("tf", string(tf)),
			logger.Duration("age_ms", age),
		)
		return nil, false, nil
	}
	return &entry, true, nil
}

// Store writes the bar set. The backend TTL is twice the staleness window so
// List can still report recently stale entries.
func (c *BarCache) Store(ctx context.Context, symbol string, tf domrepo.Timeframe, count int, bars []models.Bar, info models.SymbolInfo) error {
	entry := domrepo.CachedBars{Bars: bars, Info: info, CreatedAt: c.now().UTC()}
	if err := c.cache.Set(ctx, BarCacheKey(symbol, tf, count), entry, 2*c.maxAge); err != nil {
		return fmt.Errorf("store cached bars: %w", err)
	}
	return nil
}

func (c *BarCache) Invalidate(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) error {
	return c.cache.Delete(ctx, BarCacheKey(symbol, tf, count))
}

// CacheEntry describes one stored bar set.
type CacheEntry struct {
	Key       string    `json:"key"`
	Symbol    string    `json:"symbol"`
	Bars      int       `json:"bars"`
	CreatedAt time.Time `json:"created_at"`
	Stale     bool      `json:"stale"`
}

// List reports every cached bar set, oldest first.
func (c *BarCache) List(ctx context.Context) ([]CacheEntry, error) {
	keys, err := c.cache.Keys(ctx, cache.BuildPattern(barCachePrefix))
	if err != nil {
		return nil, fmt.Errorf("list bar cache: %w", err)
	}

	now := c.now()
	out := make([]CacheEntry, 0, len(keys))
	for _, k := range keys {
		var entry domrepo.CachedBars
		if err := c.cache.Get(ctx, k, &entry); err != nil {
			continue
		}
		out = append(out, CacheEntry{
			Key:       k,
			Symbol:    entry.Info.Symbol,
			Bars:      len(entry.Bars),
			CreatedAt: entry.CreatedAt,
			Stale:     now.Sub(entry.CreatedAt) > c.maxAge,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Purge deletes stale entries, or every entry when all is set. It returns the
// number of deleted entries.
func (c *BarCache) Purge(ctx context.Context, all bool) (int, error) {
	if all {
		return c.cache.DeleteByPattern(ctx, cache.BuildPattern(barCachePrefix))
	}

	entries, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	stale := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Stale {
			stale = append(stale, e.Key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := c.cache.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("purge bar cache: %w", err)
	}
	return len(stale), nil
}

var _ domrepo.HistoricalBarCache = (*BarCache)(nil)
