package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/services/backtest"
	"ictbot/internal/services/indicators"
	"ictbot/internal/services/mlfilter"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
)

type SignalParams struct {
	Symbol     string
	Timeframe  domrepo.Timeframe
	Bars       int
	ConfigName string
}

// SignalService evaluates the newest closed bar of a series on demand. When a
// model snapshot is stored under modelKey the probability filter starts from
// it, otherwise the filter is cold.
type SignalService struct {
	feed       domrepo.MarketDataFeed
	symbols    domrepo.SymbolSource
	strategies StrategyLoader
	models     domrepo.ModelStore
	modelKey   string
	logger     *logger.Logger
}

// NewSignalService wires the service. store and symbols may be nil.
func NewSignalService(feed domrepo.MarketDataFeed, symbols domrepo.SymbolSource, strategies StrategyLoader, store domrepo.ModelStore, modelKey string, lgr *logger.Logger) *SignalService {
	return &SignalService{
		feed:       feed,
		symbols:    symbols,
		strategies: strategies,
		models:     store,
		modelKey:   modelKey,
		logger:     lgr,
	}
}

func (s *SignalService) Latest(ctx context.Context, p SignalParams) (models.Signal, error) {
	strategy, err := s.strategies(p.ConfigName)
	if err != nil {
		return models.Signal{}, fmt.Errorf("load strategy %q: %w", p.ConfigName, err)
	}
	bars, err := s.feed.FetchBars(ctx, p.Symbol, p.Timeframe, p.Bars)
	if err != nil {
		return models.Signal{}, err
	}
	if len(bars) <= strategy.WarmupBars {
		return models.Signal{}, fmt.Errorf("%w: %d bars, need more than %d", models.ErrDataUnavailable, len(bars), strategy.WarmupBars)
	}

	info := models.DefaultSymbolInfo(p.Symbol)
	if s.symbols != nil {
		if si, err := s.symbols.SymbolInfo(ctx, p.Symbol); err == nil {
			info = si
		} else {
			s.logger.Debug("symbol info unavailable, using defaults", logger.String("symbol", p.Symbol), logger.Error(err))
		}
	}

	var opts []backtest.Option
	f, err := s.filter(ctx, strategy)
	if err != nil {
		return models.Signal{}, err
	}
	if f != nil {
		opts = append(opts, backtest.WithFilter(f))
	}
	engine, err := backtest.NewEngine(strategy, opts...)
	if err != nil {
		return models.Signal{}, err
	}

	idx := len(bars) - 1
	enriched := indicators.Enrich(bars, indicators.ConfigFromStrategy(strategy))
	setup, reason, err := engine.Evaluator().Evaluate(enriched, idx, backtest.NewState(), info)
	if err != nil {
		return models.Signal{}, err
	}
	return signalFor(p.Symbol, p.Timeframe, bars[idx], setup, reason), nil
}

// filter restores the stored model. A missing or unreadable snapshot leaves the
// filter cold; a snapshot that does not fit the strategy's feature schema is an
// error, so a cold heuristic is never passed off as the trained model.
func (s *SignalService) filter(ctx context.Context, strategy config.Strategy) (*mlfilter.Filter, error) {
	if !strategy.UseMLMetaLabelling || s.models == nil || s.modelKey == "" {
		return nil, nil
	}
	data, err := s.models.Load(ctx, s.modelKey)
	if err != nil {
		if !errors.Is(err, domrepo.ErrModelNotFound) {
			s.logger.Warn("model snapshot not loaded", logger.Error(err))
		}
		return nil, nil
	}
	f := mlfilter.New(mlfilter.ConfigFromStrategy(strategy))
	if err := json.Unmarshal(data, f); err != nil {
		if errors.Is(err, mlfilter.ErrModelIncompatible) {
			return nil, fmt.Errorf("restore model %q: %w", s.modelKey, err)
		}
		s.logger.Warn("model snapshot unreadable", logger.String("key", s.modelKey), logger.Error(err))
		return nil, nil
	}
	return f, nil
}
