package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/services/gridsearch"
	"ictbot/pkg/cache"
	"ictbot/pkg/logger"
	"ictbot/pkg/queue"
)

// GridSearchJobType is the queue message type of grid-search jobs.
const GridSearchJobType = "gridsearch.run"

const (
	gridJobTTL       = 7 * 24 * time.Hour
	progressInterval = 2 * time.Second
)

var (
	ErrGridJobNotFound = errors.New("grid search job not found")
	ErrQueueDisabled   = errors.New("job queue disabled")
)

type GridSearchParams struct {
	Symbol     string            `json:"symbol"`
	Timeframe  domrepo.Timeframe `json:"timeframe"`
	Bars       int               `json:"bars"`
	ConfigName string            `json:"config_name"`
	Workers    int               `json:"workers"`
	Top        int               `json:"top"`
}

type gridMessage struct {
	JobID  string           `json:"job_id"`
	Params GridSearchParams `json:"params"`
}

// GridSearchService submits grid searches to the job queue and executes them
// as a queue.Job. Job state lives in the cache under gridjob:<id>.
type GridSearchService struct {
	bars       BarLoader
	strategies StrategyLoader
	cache      cache.Service
	queue      queue.QueueService
	metrics    domrepo.Metrics
	logger     *logger.Logger
	grid       gridsearch.Grid
}

// NewGridSearchService wires the service. q may be nil, in which case Submit
// fails with ErrQueueDisabled.
func NewGridSearchService(bars BarLoader, strategies StrategyLoader, c cache.Service, q queue.QueueService, metrics domrepo.Metrics, lgr *logger.Logger) *GridSearchService {
	return &GridSearchService{
		bars:       bars,
		strategies: strategies,
		cache:      c,
		queue:      q,
		metrics:    metrics,
		logger:     lgr,
		grid:       gridsearch.DefaultGrid(),
	}
}

func gridJobKey(id string) string { return cache.GenerateKey("gridjob", id) }

// Submit records a queued job and publishes it.
func (s *GridSearchService) Submit(ctx context.Context, p GridSearchParams) (*models.GridJob, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	if _, err := s.strategies(p.ConfigName); err != nil {
		return nil, fmt.Errorf("load strategy %q: %w", p.ConfigName, err)
	}

	now := time.Now().UTC()
	job := &models.GridJob{
		ID:        uuid.NewString(),
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Bars:      p.Bars,
		Status:    models.GridJobQueued,
		Combos:    s.grid.Size(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.PublishMessage(ctx, GridSearchJobType, gridMessage{JobID: job.ID, Params: p}); err != nil {
		return nil, fmt.Errorf("enqueue grid search: %w", err)
	}
	s.logger.Info("grid search queued",
		logger.String("job_id", job.ID),
		logger.String("symbol", p.Symbol),
		logger.Int("combinations", job.Combos))
	return job, nil
}

func (s *GridSearchService) Get(ctx context.Context, id string) (*models.GridJob, error) {
	var job models.GridJob
	err := s.cache.Get(ctx, gridJobKey(id), &job)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", ErrGridJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get grid job %s: %w", id, err)
	}
	return &job, nil
}

func (s *GridSearchService) save(ctx context.Context, job *models.GridJob) error {
	job.UpdatedAt = time.Now().UTC()
	if err := s.cache.Set(ctx, gridJobKey(job.ID), job, gridJobTTL); err != nil {
		return fmt.Errorf("save grid job %s: %w", job.ID, err)
	}
	return nil
}

// Execute runs every combination of the grid over one history and keeps the
// top results.
func (s *GridSearchService) Execute(ctx context.Context, p GridSearchParams, progress func(done, total int)) ([]models.GridResult, error) {
	strategy, err := s.strategies(p.ConfigName)
	if err != nil {
		return nil, fmt.Errorf("load strategy %q: %w", p.ConfigName, err)
	}
	if p.Bars <= 0 {
		p.Bars = p.Timeframe.DefaultBars()
	}
	bars, info, err := s.bars.Load(ctx, p.Symbol, p.Timeframe, p.Bars)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s %s", models.ErrDataUnavailable, p.Symbol, p.Timeframe)
	}

	opts := []gridsearch.Option{gridsearch.WithLogger(s.logger), gridsearch.WithWorkers(p.Workers)}
	if progress != nil {
		opts = append(opts, gridsearch.WithProgress(progress))
	}
	start := time.Now()
	results, err := gridsearch.NewRunner(opts...).Run(ctx, strategy, bars, info, s.grid.Combinations())
	s.metrics.RecordLatency("gridsearch_run", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return gridsearch.Top(results, p.Top), nil
}

// Job adapts the service to the queue.
func (s *GridSearchService) Job() queue.Job { return &gridSearchJob{svc: s} }

type gridSearchJob struct {
	svc *GridSearchService
}

func (j *gridSearchJob) Name() string { return "gridsearch" }
func (j *gridSearchJob) Type() string { return GridSearchJobType }

func (j *gridSearchJob) Handle(ctx context.Context, payload json.RawMessage) error {
	msg, err := queue.Decode[gridMessage](payload)
	if err != nil {
		return err
	}
	s := j.svc
	job, err := s.Get(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job.Status == models.GridJobDone {
		return nil
	}
	job.Status = models.GridJobRunning
	job.Error = ""
	if err := s.save(ctx, job); err != nil {
		return err
	}

	var done atomic.Int64
	stop, stopped := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				snapshot := *job
				snapshot.Done = int(done.Load())
				if err := s.save(ctx, &snapshot); err != nil {
					s.logger.Warn("grid progress not saved", logger.Error(err))
				}
			}
		}
	}()

	results, runErr := s.Execute(ctx, msg.Params, func(n, _ int) { done.Store(int64(n)) })
	close(stop)
	<-stopped

	job.Done = int(done.Load())
	if runErr != nil {
		job.Status = models.GridJobFailed
		job.Error = runErr.Error()
		s.metrics.RecordError("gridsearch")
		if err := s.save(context.WithoutCancel(ctx), job); err != nil {
			s.logger.Error("grid job state not saved", logger.String("job_id", job.ID), logger.Error(err))
		}
		return runErr
	}
	job.Status = models.GridJobDone
	job.Results = results
	return s.save(ctx, job)
}
