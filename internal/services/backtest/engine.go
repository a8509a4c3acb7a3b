// Package backtest runs the strategy bar by bar over history and produces a
// ledger, summary metrics and per-filter rejection counts.
package backtest

import (
	"fmt"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/execution"
	"ictbot/internal/services/features"
	"ictbot/internal/services/indicators"
	"ictbot/internal/services/mlfilter"
	"ictbot/internal/services/sessions"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
)

// Result is the outcome of one run.
type Result struct {
	Metrics    models.Metrics
	Statistics models.Statistics
	Ledger     []models.LedgerEvent
	Candidates int
}

type Option func(*Engine)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFilter supplies a probability filter, e.g. one restored from a snapshot.
// Ignored when meta-labelling is disabled.
func WithFilter(f *mlfilter.Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// Engine is built from one immutable strategy. The probability filter persists
// across Run calls; everything else is reset per run.
type Engine struct {
	cfg       config.Strategy
	logger    *logger.Logger
	schema    features.Schema
	filter    *mlfilter.Filter
	evaluator *Evaluator
	calendar  *sessions.Calendar
}

func NewEngine(cfg config.Strategy, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	calendar, err := sessions.FromStrategy(cfg)
	if err != nil {
		return nil, err
	}

	fc := mlfilter.ConfigFromStrategy(cfg)
	e := &Engine{cfg: cfg, schema: fc.Schema, calendar: calendar}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.NewNop()
	}

	switch {
	case !cfg.UseMLMetaLabelling:
		e.filter = nil
	case e.filter == nil:
		e.filter = mlfilter.New(fc)
	case e.filter.Schema() != e.schema:
		return nil, fmt.Errorf("%w: filter is %s, strategy selects %s", mlfilter.ErrModelIncompatible, e.filter.Schema(), e.schema)
	}

	e.evaluator = NewEvaluator(cfg, calendar, features.NewExtractor(e.schema), e.filter)
	return e, nil
}

// Filter returns the engine's probability filter, nil when meta-labelling is off.
func (e *Engine) Filter() *mlfilter.Filter { return e.filter }

func (e *Engine) Evaluator() *Evaluator { return e.evaluator }

func (e *Engine) Calendar() *sessions.Calendar { return e.calendar }

// Run simulates the strategy over bars. bars are read only.
func (e *Engine) Run(bars []models.Bar, info models.SymbolInfo) (*Result, error) {
	cfg := e.cfg
	enriched := indicators.Enrich(bars, indicators.ConfigFromStrategy(cfg))

	res := &Result{Statistics: models.NewStatistics()}
	equity := cfg.InitialEquity
	throttle := newRiskThrottle(cfg.UseAdaptiveRisk, cfg.RiskPerTrade, cfg.RiskReductionFactor)
	breaker := &circuitBreaker{enabled: cfg.UseCircuitBreaker, limit: cfg.DailyDDLimit, day: -1}
	state := NewState()
	var open []*Position

	for i := cfg.WarmupBars; i < len(bars); i++ {
		bar := bars[i]
		res.Candidates++
		breaker.roll(e.calendar.Day(bar.Time), equity)

		still := open[:0]
		for _, p := range open {
			kind, exit, closed := p.resolve(bar)
			if !closed {
				still = append(still, p)
				continue
			}
			pnl := p.pnl(exit, info)
			equity += pnl
			res.Ledger = append(res.Ledger, models.LedgerEvent{
				Kind: kind, Time: bar.Time, Index: i, Side: p.Side,
				Entry: p.Entry, Exit: exit, SL: p.SL, TP: p.TP, RR: p.RR,
				Volume: p.Volume, Prob: p.Prob, PnL: pnl, Equity: equity, Realized: true,
			})

			won := kind == models.LedgerTP
			if e.filter != nil && p.Features.Valid() {
				if err := e.filter.Observe(p.Features, won); err != nil {
					return nil, fmt.Errorf("meta-label feedback at bar %d: %w", i, err)
				}
			}
			throttle.record(won)
		}
		open = still

		wasTripped := breaker.tripped
		state.BreakerTripped = breaker.check(equity)
		if state.BreakerTripped && !wasTripped {
			e.logger.Debug("circuit breaker tripped",
				logger.Time("time", bar.Time),
				logger.Float64("equity", equity),
				logger.Float64("day_start", breaker.anchor))
		}
		state.Open = len(open)

		setup, reason, err := e.evaluator.Evaluate(enriched, i, state, info)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.Statistics.Rejections[reason]++
			continue
		}

		volume := execution.RawVolume(equity, throttle.Risk(), setup.StopDistance(), info)
		pos := &Position{
			Side: setup.Side, Entry: setup.Entry, SL: setup.SL, TP: setup.TP, RR: setup.RR,
			Volume: volume, Prob: setup.Prob, EntryIndex: i, EntryTime: bar.Time, Features: setup.Features,
		}
		open = append(open, pos)
		state.LastEntry = i
		res.Statistics.Entries++
		res.Ledger = append(res.Ledger, models.LedgerEvent{
			Kind: models.LedgerEntry, Time: bar.Time, Index: i, Side: pos.Side,
			Entry: pos.Entry, SL: pos.SL, TP: pos.TP, RR: pos.RR,
			Volume: volume, Prob: pos.Prob, Equity: equity,
		})
	}

	if n := len(bars); n > 0 {
		last := bars[n-1]
		for _, p := range open {
			res.Ledger = append(res.Ledger, models.LedgerEvent{
				Kind: models.LedgerClose, Time: last.Time, Index: n - 1, Side: p.Side,
				Entry: p.Entry, Exit: last.Close, SL: p.SL, TP: p.TP, RR: p.RR,
				Volume: p.Volume, Prob: p.Prob, PnL: p.pnl(last.Close, info), Equity: equity,
			})
		}
	}

	res.Metrics = summarize(cfg.InitialEquity, res.Ledger)
	e.logger.Debug("backtest finished",
		logger.Int("bars", len(bars)),
		logger.Int("candidates", res.Candidates),
		logger.Int("entries", res.Statistics.Entries),
		logger.Int("trades", res.Metrics.Trades),
		logger.Float64("pnl", res.Metrics.PnL))
	return res, nil
}
