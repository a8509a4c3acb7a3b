package gridsearch

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/backtest"
	"ictbot/pkg/config"
	"ictbot/pkg/logger"
)

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithProgress registers a callback invoked after each finished combination.
// It is called from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(done, total int)) Option {
	return func(r *Runner) { r.progress = fn }
}

// Runner fans combinations out to a bounded pool of workers. Each combination
// builds its own engine; bars are shared read only.
type Runner struct {
	workers  int
	logger   *logger.Logger
	progress func(done, total int)
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{workers: runtime.NumCPU(), logger: logger.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type task struct {
	id     int
	params models.GridParams
}

// Run evaluates every combination and returns the results best first. A
// combination whose config fails validation is reported with Err set and a
// zero score. Cancelling ctx stops dispatch and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, base config.Strategy, bars []models.Bar, info models.SymbolInfo, combos []models.GridParams) ([]models.GridResult, error) {
	start := time.Now()
	results := make([]models.GridResult, len(combos))

	tasks := make(chan task)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	workers := min(r.workers, len(combos))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results[t.id] = r.evaluate(t, base, bars, info)

				mu.Lock()
				done++
				n := done
				mu.Unlock()
				if r.progress != nil {
					r.progress(n, len(combos))
				}
			}
		}()
	}

dispatch:
	for id, p := range combos {
		select {
		case <-ctx.Done():
			break dispatch
		case tasks <- task{id: id, params: p}:
		}
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grid search cancelled after %d of %d: %w", done, len(combos), err)
	}

	Rank(results)
	r.logger.Info("grid search finished",
		logger.Int("combinations", len(combos)),
		logger.Int("workers", workers),
		logger.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (r *Runner) evaluate(t task, base config.Strategy, bars []models.Bar, info models.SymbolInfo) models.GridResult {
	res := models.GridResult{ID: t.id, Params: t.params}
	cfg := Apply(base, t.params)

	engine, err := backtest.NewEngine(cfg)
	if err != nil {
		res.Err = err.Error()
		return res
	}
	out, err := engine.Run(bars, info)
	if err != nil {
		r.logger.Warn("grid combination failed", logger.Int("id", t.id), logger.Error(err))
		res.Err = err.Error()
		return res
	}

	res.Metrics = out.Metrics
	Score(&res, cfg.InitialEquity)
	return res
}

// Rank sorts results by composite score descending, then by id.
func Rank(results []models.GridResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Composite != results[j].Composite {
			return results[i].Composite > results[j].Composite
		}
		return results[i].ID < results[j].ID
	})
}

// Top returns at most n leading results.
func Top(results []models.GridResult, n int) []models.GridResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}
