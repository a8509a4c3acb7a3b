package feed

import (
	"context"
	"fmt"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
)

// Cached puts a HistoricalBarCache in front of a feed and resolves symbol info
// alongside the bars, so a cache hit needs no upstream at all.
type Cached struct {
	feed    domrepo.MarketDataFeed
	symbols domrepo.SymbolSource
	cache   domrepo.HistoricalBarCache
	l       *logger.Logger
}

func NewCached(feed domrepo.MarketDataFeed, symbols domrepo.SymbolSource, cache domrepo.HistoricalBarCache, lgr *logger.Logger) *Cached {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Cached{feed: feed, symbols: symbols, cache: cache, l: lgr}
}

// Load returns bars and symbol info. Cache failures are logged and bypassed.
func (c *Cached) Load(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, models.SymbolInfo, error) {
	if c.cache != nil {
		entry, ok, err := c.cache.Load(ctx, symbol, tf, count)
		switch {
		case err != nil:
			c.l.Warn("bar cache load failed", logger.String("symbol", symbol), logger.Error(err))
		case ok:
			c.l.Debug("bar cache hit",
				logger.String("symbol", symbol),
				logger.String("tf", string(tf)),
				logger.Int("bars", len(entry.Bars)),
			)
			return entry.Bars, entry.Info, nil
		}
	}

	bars, err := c.feed.FetchBars(ctx, symbol, tf, count)
	if err != nil {
		return nil, models.SymbolInfo{}, err
	}

	info := models.DefaultSymbolInfo(symbol)
	if c.symbols != nil {
		if info, err = c.symbols.SymbolInfo(ctx, symbol); err != nil {
			return nil, models.SymbolInfo{}, fmt.Errorf("%w: symbol info %s: %v", models.ErrDataUnavailable, symbol, err)
		}
	}

	if c.cache != nil {
		if err := c.cache.Store(ctx, symbol, tf, count, bars, info); err != nil {
			c.l.Warn("bar cache store failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return bars, info, nil
}

// SymbolInfo resolves contract details upstream, or returns the defaults when
// no symbol source is configured.
func (c *Cached) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	if c.symbols == nil {
		return models.DefaultSymbolInfo(symbol), nil
	}
	return c.symbols.SymbolInfo(ctx, symbol)
}

// Live returns the upstream feed without the cache in front. Readers of the
// newest bars use it; a cached window would miss every bar closed since.
func (c *Cached) Live() domrepo.MarketDataFeed { return c.feed }

func (c *Cached) FetchBars(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, error) {
	bars, _, err := c.Load(ctx, symbol, tf, count)
	return bars, err
}

var (
	_ domrepo.MarketDataFeed = (*Cached)(nil)
	_ domrepo.SymbolSource   = (*Cached)(nil)
)
