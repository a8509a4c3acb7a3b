package usecase

import (
	"context"
	"sync"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
)

// Subscription names one bar series to follow.
type Subscription struct {
	Symbol    string
	Timeframe domrepo.Timeframe
}

// BarCollector reads closed bars from the stream and feeds them through the
// pipeline. A read error triggers a reconnect; the stream replays its
// subscriptions on connect.
type BarCollector struct {
	stream  domrepo.BarStream
	pipe    *BarPipeline
	metrics domrepo.Metrics
	logger  *logger.Logger
	subs    []Subscription

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBarCollector(stream domrepo.BarStream, pipe *BarPipeline, metrics domrepo.Metrics, lgr *logger.Logger, subs ...Subscription) *BarCollector {
	return &BarCollector{stream: stream, pipe: pipe, metrics: metrics, logger: lgr, subs: subs}
}

// IsConnected returns true if the bar stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	for _, s := range c.subs {
		if err := c.stream.Subscribe(ctx, s.Symbol, s.Timeframe); err != nil {
			return err
		}
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.pipe.Start(ctx)

	c.wg.Add(1)
	go c.consume(ctx)
	c.logger.Info("bar collector started", logger.Int("subscriptions", len(c.subs)))
	return nil
}

func (c *BarCollector) consume(ctx context.Context) {
	defer c.wg.Done()
	for {
		bars, errs := c.stream.Read(ctx)
		c.drain(ctx, bars, errs)
		if ctx.Err() != nil {
			return
		}
		for {
			c.metrics.RecordError("stream")
			err := c.stream.Reconnect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("bar stream reconnect failed", logger.Error(err))
		}
		c.logger.Info("bar stream reconnected")
	}
}

// drain forwards bars until the read channels close or ctx ends.
func (c *BarCollector) drain(ctx context.Context, bars <-chan *domrepo.StreamBar, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				if bars == nil {
					return
				}
				continue
			}
			c.logger.Warn("bar stream read failed", logger.Error(err))
		case sb, ok := <-bars:
			if !ok {
				bars = nil
				if errs == nil {
					return
				}
				continue
			}
			if err := c.pipe.Process(ctx, sb); err != nil {
				c.logger.Debug("bar not processed",
					logger.String("symbol", sb.Symbol),
					logger.Time("time", sb.Bar.Time),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the consume loop and pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.pipe.Stop()
	return err
}

// BarRecorder persists every streamed bar to the bar store.
type BarRecorder struct {
	store domrepo.BarStore
}

func NewBarRecorder(store domrepo.BarStore) *BarRecorder {
	return &BarRecorder{store: store}
}

func (r *BarRecorder) Process(ctx context.Context, sb *domrepo.StreamBar) error {
	return r.store.StoreBatch(ctx, sb.Symbol, sb.Timeframe, []models.Bar{sb.Bar})
}
