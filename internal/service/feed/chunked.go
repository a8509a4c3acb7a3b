package feed

import (
	"context"
	"fmt"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/logger"
)

// DefaultMaxBarsPerChunk keeps each request under the broker's 100k-bar limit.
const DefaultMaxBarsPerChunk = 99000

// Chunked is a MarketDataFeed that splits large requests into newest-first
// chunks and returns them joined in chronological order.
type Chunked struct {
	src      domrepo.RangeSource
	maxChunk int
	l        *logger.Logger
}

// Option configures Chunked.
type Option func(*Chunked)

func WithMaxBarsPerChunk(n int) Option {
	return func(c *Chunked) {
		if n > 0 {
			c.maxChunk = n
		}
	}
}

func WithLogger(lgr *logger.Logger) Option {
	return func(c *Chunked) {
		if lgr != nil {
			c.l = lgr
		}
	}
}

func NewChunked(src domrepo.RangeSource, opts ...Option) *Chunked {
	c := &Chunked{src: src, maxChunk: DefaultMaxBarsPerChunk, l: logger.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBars returns up to count of the newest bars. A short chunk means history
// is exhausted. No bars at all is ErrDataUnavailable.
func (c *Chunked) FetchBars(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: non-positive bar count %d", models.ErrDataUnavailable, count)
	}

	var chunks [][]models.Bar
	pos, total := 0, 0
	for pos < count {
		size := min(count-pos, c.maxChunk)
		chunk, err := c.src.FetchRange(ctx, symbol, tf, pos, size)
		if err != nil {
			if len(chunks) == 0 {
				return nil, fmt.Errorf("%w: %s %s: %v", models.ErrDataUnavailable, symbol, tf, err)
			}
			c.l.Warn("history chunk failed, keeping partial history",
				logger.String("symbol", symbol),
				logger.Int("pos", pos),
				logger.Error(err),
			)
			break
		}
		if len(chunk) == 0 {
			break
		}

		chunks = append(chunks, chunk)
		pos += len(chunk)
		total += len(chunk)
		c.l.Debug("history chunk loaded",
			logger.String("symbol", symbol),
			logger.String("tf", string(tf)),
			logger.Int("chunk", len(chunks)),
			logger.Int("bars", len(chunk)),
		)
		if len(chunk) < size {
			break
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no bars for %s %s", models.ErrDataUnavailable, symbol, tf)
	}

	return joinChronological(chunks, total), nil
}

// joinChronological reverses chunk order and drops bars that do not advance in time,
// which happens when new bars close between two chunk requests.
func joinChronological(chunks [][]models.Bar, total int) []models.Bar {
	out := make([]models.Bar, 0, total)
	for i := len(chunks) - 1; i >= 0; i-- {
		for _, b := range chunks[i] {
			if n := len(out); n > 0 && !b.Time.After(out[n-1].Time) {
				continue
			}
			out = append(out, b)
		}
	}
	return out
}

var _ domrepo.MarketDataFeed = (*Chunked)(nil)
