package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/services/backtest"
	"ictbot/internal/services/execution"
	"ictbot/internal/services/indicators"
	"ictbot/internal/services/mlfilter"
	"ictbot/internal/services/sessions"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
)

// fallbackWarmupBars is loaded when the full warm-up history is unavailable.
const fallbackWarmupBars = 10000

var ErrNotWarmedUp = errors.New("live trader not warmed up")

type LiveConfig struct {
	Symbol     string
	Timeframe  domrepo.Timeframe
	WarmupBars int
	WindowBars int
	ModelKey   string
}

// LiveTrader evaluates every newly closed bar of one series with the same
// filter chain as the backtest and routes accepted setups to the gateway.
// The probability filter is trained by a warm-up backtest and owned by the
// trader; it is never shared.
type LiveTrader struct {
	cfg      LiveConfig
	strategy config.Strategy
	feed     domrepo.MarketDataFeed
	symbols  domrepo.SymbolSource
	gateway  domrepo.OrderExecutionGateway
	models   domrepo.ModelStore
	metrics  domrepo.Metrics
	logger   *logger.Logger

	mu         sync.Mutex
	info       models.SymbolInfo
	evaluator  *backtest.Evaluator
	calendar   *sessions.Calendar
	breaker    *backtest.Breaker
	lastBar    time.Time
	seen       int // closed bars processed since warm-up
	lastEntry  int // value of seen at the last placed order
	hasEntry   bool
	lastSignal *models.Signal
}

// NewLiveTrader wires a trader. store may be nil to skip model persistence.
func NewLiveTrader(cfg LiveConfig, strategy config.Strategy, feed domrepo.MarketDataFeed, symbols domrepo.SymbolSource, gateway domrepo.OrderExecutionGateway, store domrepo.ModelStore, metrics domrepo.Metrics, lgr *logger.Logger) *LiveTrader {
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = 5000
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = 100000
	}
	return &LiveTrader{
		cfg:      cfg,
		strategy: strategy,
		feed:     feed,
		symbols:  symbols,
		gateway:  gateway,
		models:   store,
		metrics:  metrics,
		logger:   lgr.With(logger.String("symbol", cfg.Symbol), logger.String("timeframe", string(cfg.Timeframe))),
		breaker:  backtest.NewBreaker(strategy.UseCircuitBreaker, strategy.DailyDDLimit),
	}
}

// Warmup loads history, restores the stored model if any, trains the filter
// with a backtest over the history and saves the result.
func (t *LiveTrader) Warmup(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := t.symbols.SymbolInfo(ctx, t.cfg.Symbol)
	if err != nil {
		t.logger.Warn("symbol info unavailable, using defaults", logger.Error(err))
		info = models.DefaultSymbolInfo(t.cfg.Symbol)
	}

	bars, err := t.feed.FetchBars(ctx, t.cfg.Symbol, t.cfg.Timeframe, t.cfg.WarmupBars)
	if err != nil {
		t.logger.Warn("warm-up history unavailable, loading fallback",
			logger.Int("bars", t.cfg.WarmupBars),
			logger.Int("fallback", fallbackWarmupBars),
			logger.Error(err))
		bars, err = t.feed.FetchBars(ctx, t.cfg.Symbol, t.cfg.Timeframe, fallbackWarmupBars)
		if err != nil {
			return fmt.Errorf("load warm-up history: %w", err)
		}
	}

	var opts []backtest.Option
	filter := t.restoreFilter(ctx)
	if filter != nil {
		opts = append(opts, backtest.WithFilter(filter))
	}
	engine, err := backtest.NewEngine(t.strategy, append(opts, backtest.WithLogger(t.logger))...)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := engine.Run(bars, info)
	if err != nil {
		return fmt.Errorf("warm-up backtest: %w", err)
	}
	fields := []logger.Field{
		logger.Int("bars", len(bars)),
		logger.Int("trades", res.Metrics.Trades),
		logger.Float64("winrate", res.Metrics.WinRate),
		logger.Duration("elapsed_ms", time.Since(start)),
	}
	if f := engine.Filter(); f != nil {
		fields = append(fields, logger.Int("ml_samples", f.Samples()), logger.Bool("ml_trained", f.Trained()))
		t.saveFilter(ctx, f)
	}
	t.logger.Info("live warm-up complete", fields...)

	t.info = info
	t.evaluator = engine.Evaluator()
	t.calendar = engine.Calendar()
	if len(bars) > 0 {
		t.lastBar = bars[len(bars)-1].Time
	}
	return nil
}

func (t *LiveTrader) restoreFilter(ctx context.Context) *mlfilter.Filter {
	if !t.strategy.UseMLMetaLabelling || t.models == nil {
		return nil
	}
	data, err := t.models.Load(ctx, t.cfg.ModelKey)
	if err != nil {
		if !errors.Is(err, domrepo.ErrModelNotFound) {
			t.logger.Warn("model snapshot not loaded", logger.Error(err))
		}
		return nil
	}
	f := mlfilter.New(mlfilter.ConfigFromStrategy(t.strategy))
	if err := json.Unmarshal(data, f); err != nil {
		if errors.Is(err, mlfilter.ErrModelIncompatible) {
			t.metrics.RecordError("model_incompatible")
			t.logger.Error("stored model does not match the feature schema, retraining from scratch",
				logger.String("key", t.cfg.ModelKey),
				logger.String("schema", f.Schema().String()),
				logger.Error(err))
			return nil
		}
		t.metrics.RecordError("model_restore")
		t.logger.Warn("model snapshot unreadable, training from scratch", logger.Error(err))
		return nil
	}
	t.logger.Info("model snapshot restored", logger.Int("samples", f.Samples()))
	return f
}

func (t *LiveTrader) saveFilter(ctx context.Context, f *mlfilter.Filter) {
	if t.models == nil || !f.Trained() {
		return
	}
	data, err := json.Marshal(f)
	if err == nil {
		err = t.models.Save(ctx, t.cfg.ModelKey, data)
	}
	if err != nil {
		t.metrics.RecordError("model_save")
		t.logger.Warn("model snapshot not saved", logger.Error(err))
	}
}

// Process handles one closed bar from the stream. Bars of other series and
// bars not newer than the last one handled are ignored.
func (t *LiveTrader) Process(ctx context.Context, sb *domrepo.StreamBar) error {
	if sb.Symbol != t.cfg.Symbol || sb.Timeframe != t.cfg.Timeframe {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.evaluator == nil {
		return ErrNotWarmedUp
	}
	if !sb.Bar.Time.After(t.lastBar) {
		return nil
	}

	start := time.Now()
	window, err := t.feed.FetchBars(ctx, t.cfg.Symbol, t.cfg.Timeframe, t.cfg.WindowBars)
	if err != nil {
		t.metrics.RecordError("live_window")
		return fmt.Errorf("load live window: %w", err)
	}
	window = closeWindow(window, sb.Bar)
	acct, err := t.gateway.Account(ctx)
	if err != nil {
		t.metrics.RecordError("live_account")
		return fmt.Errorf("account: %w", err)
	}
	positions, err := t.gateway.OpenPositions(ctx, t.cfg.Symbol, t.strategy.MagicNumber)
	if err != nil {
		t.metrics.RecordError("live_positions")
		return fmt.Errorf("open positions: %w", err)
	}

	t.lastBar = sb.Bar.Time
	t.seen++
	t.metrics.RecordEquity(t.cfg.Symbol, acct.Equity)

	idx := len(window) - 1
	if idx < t.strategy.WarmupBars {
		t.logger.Debug("live window too short", logger.Int("bars", len(window)))
		return nil
	}
	enriched := indicators.Enrich(window, indicators.ConfigFromStrategy(t.strategy))

	st := backtest.NewState()
	st.BreakerTripped = t.breaker.Update(t.calendar.Day(sb.Bar.Time), acct.Equity)
	st.Open = len(positions)
	if t.hasEntry {
		st.LastEntry = idx - (t.seen - t.lastEntry)
	}

	setup, reason, err := t.evaluator.Evaluate(enriched, idx, st, t.info)
	if err != nil {
		t.metrics.RecordError("live_evaluate")
		return fmt.Errorf("evaluate: %w", err)
	}
	sig := signalFor(t.cfg.Symbol, t.cfg.Timeframe, sb.Bar, setup, reason)
	t.lastSignal = &sig
	t.metrics.RecordLatency("live_evaluate", time.Since(start).Seconds())

	if reason != "" {
		t.metrics.RecordRejection(t.cfg.Symbol, reason, 1)
		t.logger.Debug("bar rejected", logger.Time("time", sb.Bar.Time), logger.String("reason", string(reason)))
		return nil
	}
	t.place(ctx, acct, setup, sb.Bar.Time)
	return nil
}

// place sends the order. Rejections and transport failures are logged and
// the trader keeps running; only a filled order starts the cooldown.
func (t *LiveTrader) place(ctx context.Context, acct models.Account, setup backtest.Setup, at time.Time) {
	volume := execution.Size(acct.Balance, t.strategy.RiskPerTrade, setup.StopDistance(), t.info)
	req := models.OrderRequest{
		Symbol:  t.cfg.Symbol,
		Side:    setup.Side,
		Volume:  volume,
		Price:   setup.Entry,
		SL:      setup.SL,
		TP:      setup.TP,
		Magic:   t.strategy.MagicNumber,
		Comment: t.strategy.Comment,
	}
	res, err := t.gateway.PlaceOrder(ctx, req)
	fields := []logger.Field{
		logger.Time("bar_time", at),
		logger.String("side", setup.Side.String()),
		logger.Float64("entry", setup.Entry),
		logger.Float64("sl", setup.SL),
		logger.Float64("tp", setup.TP),
		logger.Float64("volume", volume),
		logger.Float64("prob", setup.Prob),
	}
	if err != nil {
		if errors.Is(err, domrepo.ErrExecutionRejected) {
			t.metrics.RecordError("order_rejected")
			t.logger.Warn("order rejected", append(fields, logger.Error(err))...)
			return
		}
		t.metrics.RecordError("order_send")
		t.logger.Error("order not sent", append(fields, logger.Error(err))...)
		return
	}

	t.lastEntry = t.seen
	t.hasEntry = true
	t.metrics.RecordEntry(t.cfg.Symbol, 1)
	t.logger.Info("order placed", append(fields, logger.Int64("ticket", res.Ticket))...)
}

// LastSignal returns the outcome of the most recent evaluated bar.
func (t *LiveTrader) LastSignal() (models.Signal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastSignal == nil {
		return models.Signal{}, false
	}
	return *t.lastSignal, true
}

func (t *LiveTrader) Symbol() string               { return t.cfg.Symbol }
func (t *LiveTrader) Timeframe() domrepo.Timeframe { return t.cfg.Timeframe }

// closeWindow trims window to bars at or before the closed bar and appends
// the closed bar when the feed has not caught up with the stream yet.
func closeWindow(window []models.Bar, closed models.Bar) []models.Bar {
	n := len(window)
	for n > 0 && window[n-1].Time.After(closed.Time) {
		n--
	}
	window = window[:n]
	if n == 0 || window[n-1].Time.Before(closed.Time) {
		window = append(window[:n:n], closed)
	}
	return window
}

func signalFor(symbol string, tf domrepo.Timeframe, bar models.Bar, setup backtest.Setup, reason models.RejectReason) models.Signal {
	sig := models.Signal{
		Symbol:    symbol,
		Timeframe: string(tf),
		Time:      bar.Time,
		Accepted:  reason == "",
		Reason:    reason,
	}
	if reason != "" {
		return sig
	}
	sig.Side = setup.Side
	sig.Entry = setup.Entry
	sig.SL = setup.SL
	sig.TP = setup.TP
	sig.RR = setup.RR
	sig.Prob = setup.Prob
	sig.FVGTop = setup.Confluence.Top
	sig.FVGBot = setup.Confluence.Bot
	sig.BOSDistance = setup.Confluence.BOSDistance
	return sig
}
