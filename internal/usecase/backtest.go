package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/services/backtest"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
	"ictbot/pkg/util"
)

// BarLoader returns history for a series together with its contract details.
type BarLoader interface {
	Load(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, models.SymbolInfo, error)
}

// StrategyLoader resolves a named strategy document.
type StrategyLoader func(name string) (config.Strategy, error)

// DirStrategies loads strategies from <dir>/<name>.json.
func DirStrategies(dir string) StrategyLoader {
	return func(name string) (config.Strategy, error) {
		return config.LoadStrategy(dir, name)
	}
}

// StatisticsRecorder is implemented by metrics backends that export whole
// rejection tables at once.
type StatisticsRecorder interface {
	RecordStatistics(symbol string, s models.Statistics)
}

// BacktestParams selects the data and strategy of a run. Zero Bars means the
// timeframe's default history length.
type BacktestParams struct {
	Symbol     string
	Timeframe  domrepo.Timeframe
	Bars       int
	ConfigName string
	NoML       bool
}

// BacktestService loads history, runs the engine and persists the report.
type BacktestService struct {
	bars       BarLoader
	strategies StrategyLoader
	reports    domrepo.ReportStore
	ledger     domrepo.LedgerPublisher
	metrics    domrepo.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

// NewBacktestService wires the run pipeline. ledger may be nil.
func NewBacktestService(bars BarLoader, strategies StrategyLoader, reports domrepo.ReportStore, ledger domrepo.LedgerPublisher, metrics domrepo.Metrics, lgr *logger.Logger) *BacktestService {
	return &BacktestService{
		bars:       bars,
		strategies: strategies,
		reports:    reports,
		ledger:     ledger,
		metrics:    metrics,
		logger:     lgr,
		now:        time.Now,
	}
}

// Run executes one backtest and returns its persisted report. Data failures
// wrap models.ErrDataUnavailable. A failed save is returned with the report;
// a failed ledger publish is only logged.
func (s *BacktestService) Run(ctx context.Context, p BacktestParams) (*models.Report, error) {
	start := time.Now()
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))
	}
	if p.Bars <= 0 {
		p.Bars = p.Timeframe.DefaultBars()
	}

	strategy, err := s.strategies(p.ConfigName)
	if err != nil {
		return nil, fmt.Errorf("load strategy %q: %w", p.ConfigName, err)
	}
	if p.NoML {
		strategy = strategy.WithoutML()
	}

	bars, info, err := s.bars.Load(ctx, p.Symbol, p.Timeframe, p.Bars)
	if err != nil {
		s.metrics.RecordError("backtest_load")
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s %s", models.ErrDataUnavailable, p.Symbol, p.Timeframe)
	}

	runID := uuid.NewString()
	lgr := s.logger.With(logger.String("run_id", runID), logger.String("symbol", p.Symbol))
	engine, err := backtest.NewEngine(strategy, backtest.WithLogger(lgr))
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(bars, info)
	if err != nil {
		s.metrics.RecordError("backtest_run")
		return nil, fmt.Errorf("run backtest: %w", err)
	}

	report := BuildReport(runID, p.Symbol, p.Timeframe, bars, strategy, res, s.now())
	s.record(p.Symbol, res)

	if err := s.reports.Save(ctx, report); err != nil {
		s.metrics.RecordError("backtest_save")
		return report, fmt.Errorf("save report: %w", err)
	}
	if s.ledger != nil && len(res.Ledger) > 0 {
		if err := s.ledger.PublishLedger(ctx, runID, p.Symbol, res.Ledger); err != nil {
			s.metrics.RecordError("ledger_publish")
			lgr.Warn("ledger publish failed", logger.Error(err))
		}
	}

	elapsed := time.Since(start)
	s.metrics.RecordLatency("backtest_run", elapsed.Seconds())
	lgr.Info("backtest complete",
		logger.String("timeframe", string(p.Timeframe)),
		logger.Int("bars", len(bars)),
		logger.Int("trades", res.Metrics.Trades),
		logger.Float64("winrate", res.Metrics.WinRate),
		logger.Float64("pnl", res.Metrics.PnL),
		logger.Duration("elapsed_ms", elapsed))
	return report, nil
}

func (s *BacktestService) record(symbol string, res *backtest.Result) {
	if sr, ok := s.metrics.(StatisticsRecorder); ok {
		sr.RecordStatistics(symbol, res.Statistics)
	} else {
		for reason, n := range res.Statistics.Rejections {
			s.metrics.RecordRejection(symbol, reason, n)
		}
		s.metrics.RecordEntry(symbol, res.Statistics.Entries)
	}
	s.metrics.RecordEquity(symbol, res.Metrics.FinalEquity)
}

func (s *BacktestService) Get(ctx context.Context, runID string) (*models.Report, error) {
	return s.reports.Get(ctx, runID)
}

func (s *BacktestService) List(ctx context.Context, symbol string, limit int) ([]models.ReportMetadata, error) {
	return s.reports.List(ctx, symbol, limit)
}

// BuildReport assembles the persisted form of a run.
func BuildReport(runID, symbol string, tf domrepo.Timeframe, bars []models.Bar, strategy config.Strategy, res *backtest.Result, now time.Time) *models.Report {
	first, last := bars[0].Time, bars[len(bars)-1].Time
	days := util.PeriodDays(first, last)
	return &models.Report{
		Metadata: models.ReportMetadata{
			RunID:        runID,
			Symbol:       symbol,
			Timeframe:    string(tf),
			Bars:         len(bars),
			PeriodDays:   float64(days),
			PeriodMonths: util.PeriodMonths(days),
			Start:        first,
			End:          last,
			Timestamp:    now.UTC(),
		},
		Metrics:    res.Metrics,
		Statistics: res.Statistics.AsMap(),
		Config:     strategy.AsMap(),
		Ledger:     res.Ledger,
	}
}
