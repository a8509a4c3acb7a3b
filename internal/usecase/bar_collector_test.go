package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
	"ictbot/pkg/metrics"
)

// scriptedStream delivers one batch of bars per Read and then fails the read.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]*domrepo.StreamBar
	subs       []Subscription
	reconnects atomic.Int32
	connected  atomic.Bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.connected.Store(true)
	return nil
}

func (s *scriptedStream) Subscribe(_ context.Context, symbol string, tf domrepo.Timeframe) error {
	s.mu.Lock()
	s.subs = append(s.subs, Subscription{symbol, tf})
	s.mu.Unlock()
	return nil
}

func (s *scriptedStream) Read(ctx context.Context) (<-chan *domrepo.StreamBar, <-chan error) {
	bars := make(chan *domrepo.StreamBar, 16)
	errs := make(chan error, 1)

	s.mu.Lock()
	var batch []*domrepo.StreamBar
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()

	go func() {
		defer close(bars)
		defer close(errs)
		for _, b := range batch {
			bars <- b
		}
		if batch == nil {
			<-ctx.Done()
			return
		}
		errs <- errors.New("connection reset")
	}()
	return bars, errs
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.reconnects.Add(1)
	return nil
}

func (s *scriptedStream) Close() error {
	s.connected.Store(false)
	return nil
}

func (s *scriptedStream) IsConnected() bool { return s.connected.Load() }

func TestBarCollectorReconnectsAndForwards(t *testing.T) {
	stream := &scriptedStream{batches: [][]*domrepo.StreamBar{
		{streamBar(1), streamBar(2)},
		{streamBar(2), streamBar(3)},
	}}
	proc := &recordingProcessor{}
	pipe := NewBarPipeline(proc, metrics.Nop{})
	c := NewBarCollector(stream, pipe, metrics.Nop{}, logger.NewNop(), Subscription{"EURUSD", domrepo.TFM15})

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsConnected())
	assert.Equal(t, []Subscription{{"EURUSD", domrepo.TFM15}}, stream.subs)

	assert.Eventually(t, func() bool { return proc.count() == 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return stream.reconnects.Load() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())
}
