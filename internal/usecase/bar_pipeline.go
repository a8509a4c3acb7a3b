package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
)

var ErrInvalidBar = errors.New("invalid bar")

// BarProcessor consumes closed bars.
type BarProcessor interface {
	Process(ctx context.Context, sb *domrepo.StreamBar) error
}

// BarProcessors runs every processor in order and returns the first error.
// Later processors still see the bar when an earlier one fails.
type BarProcessors []BarProcessor

func (ps BarProcessors) Process(ctx context.Context, sb *domrepo.StreamBar) error {
	var first error
	for _, p := range ps {
		if err := p.Process(ctx, sb); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BarPipeline sits between the bar stream and its processors. It validates
// bars, drops duplicates and out-of-order bars per symbol and timeframe, and
// buffers bars whose processing failed for a background retry.
type BarPipeline struct {
	proc    BarProcessor
	metrics domrepo.Metrics
	logger  *logger.Logger

	bufSize    int
	bufCh      chan *domrepo.StreamBar
	stopCh     chan struct{}
	doneCh     chan struct{}
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.Mutex
	started  bool
	lastSeen map[string]time.Time
}

type PipelineOption func(*BarPipeline)

// WithBufferSize sets how many failed bars are held for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *BarPipeline) {
		if min > 0 && max >= min {
			p.minBackoff, p.maxBackoff = min, max
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *BarPipeline) { p.logger = l }
}

func NewBarPipeline(proc BarProcessor, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:       proc,
		metrics:    metrics,
		logger:     logger.NewNop(),
		bufSize:    1000,
		minBackoff: 50 * time.Millisecond,
		maxBackoff: 2 * time.Second,
		lastSeen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *domrepo.StreamBar, p.bufSize)
	return p
}

// Start launches the retry loop for buffered bars.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go func() {
		defer close(done)
		backoff := p.minBackoff
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case sb := <-p.bufCh:
				if err := p.proc.Process(ctx, sb); err != nil {
					p.metrics.RecordError("pipeline_flush")
					if backoff < p.maxBackoff {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-stop:
						return
					case <-ctx.Done():
						return
					}
					p.buffer(sb)
					continue
				}
				backoff = p.minBackoff
			}
		}
	}()
}

// Stop ends the retry loop and waits for it. Bars still buffered are dropped.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stop)
	<-done
	if n := len(p.bufCh); n > 0 {
		p.logger.Warn("bar pipeline stopped with buffered bars", logger.Int("buffered", n))
	}
}

// Buffered returns the number of bars waiting for a retry.
func (p *BarPipeline) Buffered() int { return len(p.bufCh) }

// Process validates sb, drops it when it does not advance its series, and
// hands it to the processor. A processor error buffers the bar and is returned.
func (p *BarPipeline) Process(ctx context.Context, sb *domrepo.StreamBar) error {
	start := time.Now()
	if err := validateStreamBar(sb); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.advance(sb) {
		p.metrics.RecordError("pipeline_duplicate")
		return nil
	}

	if err := p.proc.Process(ctx, sb); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(sb)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *BarPipeline) buffer(sb *domrepo.StreamBar) {
	select {
	case p.bufCh <- sb:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		p.logger.Warn("bar pipeline buffer full, dropping bar",
			logger.String("symbol", sb.Symbol),
			logger.Time("time", sb.Bar.Time))
	}
}

// advance records sb as the newest bar of its series. It reports false for
// a bar at or before the last one seen.
func (p *BarPipeline) advance(sb *domrepo.StreamBar) bool {
	key := sb.Symbol + "|" + string(sb.Timeframe)
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[key]; ok && !sb.Bar.Time.After(last) {
		return false
	}
	p.lastSeen[key] = sb.Bar.Time
	return true
}

func validateStreamBar(sb *domrepo.StreamBar) error {
	switch {
	case sb == nil:
		return fmt.Errorf("%w: nil", ErrInvalidBar)
	case sb.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidBar)
	case !domrepo.IsValidTimeframe(sb.Timeframe):
		return fmt.Errorf("%w: timeframe %q", ErrInvalidBar, sb.Timeframe)
	case sb.Bar.Time.IsZero():
		return fmt.Errorf("%w: zero time", ErrInvalidBar)
	}
	b := sb.Bar
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("%w: non-positive price", ErrInvalidBar)
	}
	if b.High < b.Low || b.High < b.Open || b.High < b.Close || b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%w: inconsistent OHLC", ErrInvalidBar)
	}
	return nil
}
