package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ictbot/internal/di"
	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/usecase"
	"ictbot/pkg/cache"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
	"ictbot/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "service config file path")
	symbol := flag.String("symbol", "EURUSD", "symbol to optimise")
	timeframe := flag.String("timeframe", "M5", "timeframe (M1, M5, M15, M30, H1, H4, D1)")
	bars := flag.Int("bars", 0, "number of bars, 0 for the timeframe default")
	configName := flag.String("config-name", "default", "base strategy config name")
	workers := flag.Int("workers", 4, "parallel backtests")
	top := flag.Int("top", 10, "results to keep")
	source := flag.String("source", "", "override data.source (clickhouse or bridge)")
	flag.Parse()

	os.Exit(run(*configPath, *source, usecase.GridSearchParams{
		Symbol:     *symbol,
		Timeframe:  domrepo.NormalizeTimeframe(*timeframe),
		Bars:       *bars,
		ConfigName: *configName,
		Workers:    *workers,
		Top:        *top,
	}))
}

func run(configPath, source string, p usecase.GridSearchParams) int {
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

	md, release, err := di.NewMarketData(cfg, lgr)
	if err != nil {
		lgr.Error("market data unavailable", logger.Error(err))
		return 1
	}
	defer release()

	jobs := cache.NewMemoryCache()
	defer jobs.Close()
	svc := usecase.NewGridSearchService(md, usecase.DirStrategies(cfg.Strategy.Dir), jobs, nil, metrics.Nop{}, lgr)

	start := time.Now()
	results, err := svc.Execute(ctx, p, func(done, total int) {
		if step := max(total/10, 1); done%step == 0 || done == total {
			lgr.Info("grid progress", logger.Int("done", done), logger.Int("total", total))
		}
	})
	if err != nil {
		lgr.Error("grid search failed", logger.Error(err))
		return 1
	}
	lgr.Info("grid search complete", logger.Duration("elapsed_ms", time.Since(start)))

	path, err := writeResults(cfg.Reports.Dir, p, results)
	if err != nil {
		lgr.Warn("results not saved", logger.Error(err))
	} else {
		lgr.Info("results saved", logger.String("path", path))
	}
	printResults(results)
	return 0
}

func writeResults(dir string, p usecase.GridSearchParams, results []models.GridResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	name := fmt.Sprintf("gridsearch_%s_%s_%s.json", p.Symbol, p.Timeframe, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(struct {
		Params  usecase.GridSearchParams `json:"params"`
		Results []models.GridResult      `json:"results"`
	}{p, results}, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

func printResults(results []models.GridResult) {
	fmt.Println("\n=== TOP COMBINATIONS ===")
	for i, r := range results {
		fmt.Printf("#%d score=%.3f pnl%%=%.2f sharpe=%.2f trades=%d winrate=%.1f%% dd=%.2f%% | risk=%.3f rr=%.2f max=%d cooldown=%d ml=%.2f atr=%t breaker=%t\n",
			i+1, r.Composite, r.PnLPct, r.Sharpe, r.Metrics.Trades, r.Metrics.WinRate, r.Metrics.MaxDrawdownPct,
			r.Params.RiskPerTrade, r.Params.RRTakeProfit, r.Params.MaxConcurrentTrades, r.Params.CooldownBars,
			r.Params.MLThreshold, r.Params.UseATRFilter, r.Params.UseCircuitBreaker)
	}
}
