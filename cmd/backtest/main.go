package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ictbot/internal/di"
	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/repository"
	"ictbot/internal/usecase"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
	"ictbot/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "service config file path")
	symbol := flag.String("symbol", "EURUSD", "symbol to backtest")
	timeframe := flag.String("timeframe", "M5", "timeframe (M1, M5, M15, M30, H1, H4, D1)")
	bars := flag.Int("bars", 0, "number of bars, 0 for the timeframe default")
	configName := flag.String("config-name", "default", "strategy config name under strategy.dir")
	noML := flag.Bool("no-ml", false, "disable the probability filter")
	_ = flag.Bool("no-plot", false, "accepted for compatibility, nothing is plotted")
	source := flag.String("source", "", "override data.source (clickhouse or bridge)")
	flag.Parse()

	os.Exit(run(*configPath, *source, usecase.BacktestParams{
		Symbol:     *symbol,
		Timeframe:  domrepo.NormalizeTimeframe(*timeframe),
		Bars:       *bars,
		ConfigName: *configName,
		NoML:       *noML,
	}))
}

func run(configPath, source string, p usecase.BacktestParams) int {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return 1
	}
	if source != "" {
		cfg.Data.Source = source
		if err := cfg.Validate(); err != nil {
			log.Printf("invalid -source: %v", err)
			return 1
		}
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		log.Printf("unknown timeframe %q", p.Timeframe)
		return 1
	}

	lgr, err := di.ProvideLogger(cfg, nil)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	md, closeData, err := di.NewMarketData(cfg, lgr)
	if err != nil {
		lgr.Error("market data unavailable", logger.Error(err))
		return 1
	}
	defer closeData()

	svc := usecase.NewBacktestService(md, usecase.DirStrategies(cfg.Strategy.Dir),
		repository.NewFileReportStore(cfg.Reports.Dir), nil, metrics.Nop{}, lgr)

	report, err := svc.Run(ctx, p)
	switch {
	case errors.Is(err, models.ErrDataUnavailable):
		lgr.Error("no bars loaded", logger.String("symbol", p.Symbol), logger.Error(err))
		return 1
	case report == nil:
		lgr.Error("backtest failed", logger.Error(err))
		return 1
	case err != nil:
		lgr.Warn("report not saved", logger.Error(err))
	}

	printReport(report)
	return 0
}

func printReport(r *models.Report) {
	md, m := r.Metadata, r.Metrics
	fmt.Printf("run %s\n", md.RunID)
	fmt.Printf("period: %s -> %s (%.0f days, %.1f months), %d bars\n",
		md.Start.Format("2006-01-02"), md.End.Format("2006-01-02"), md.PeriodDays, md.PeriodMonths, md.Bars)

	fmt.Println("\n=== FILTER STATISTICS ===")
	for _, reason := range models.RejectReasons {
		fmt.Printf("%-30s %d\n", reason, r.Statistics[string(reason)])
	}
	fmt.Printf("%-30s %d\n", "entries", r.Statistics["entries"])

	fmt.Printf("\n=== METRICS (%s %s) ===\n", md.Symbol, md.Timeframe)
	fmt.Printf("Trades: %d | Winrate: %.1f%% | PnL: %.2f | MaxDD: %.2f%% | Equity: %.2f\n",
		m.Trades, m.WinRate, m.PnL, m.MaxDrawdownPct, m.FinalEquity)
	if m.OpenAtEnd > 0 {
		fmt.Printf("Open at end: %d (unrealized %.2f)\n", m.OpenAtEnd, m.UnrealizedPnL)
	}
	if ml, ok := r.Config["USE_ML_META_LABELLING"].(bool); ok {
		fmt.Printf("Probability filter enabled: %t\n", ml)
	}
}
