package repository

import (
	"context"
	"errors"
	"time"

	"ictbot/internal/domain/models"
)

var (
	// ErrReportNotFound is returned when no report exists for a run id.
	ErrReportNotFound = errors.New("report not found")
	// ErrModelNotFound is returned when no snapshot exists under a key.
	ErrModelNotFound = errors.New("model snapshot not found")
	// ErrExecutionRejected is returned when the broker refuses an order.
	ErrExecutionRejected = errors.New("order rejected by broker")
)

// MarketDataFeed returns the most recent count bars in chronological order.
type MarketDataFeed interface {
	FetchBars(ctx context.Context, symbol string, tf Timeframe, count int) ([]models.Bar, error)
}

// RangeSource serves one chunk of history. pos counts bars back from the newest,
// so pos=0 is the latest chunk. Bars inside a chunk are chronological.
type RangeSource interface {
	FetchRange(ctx context.Context, symbol string, tf Timeframe, pos, count int) ([]models.Bar, error)
}

// SymbolSource resolves contract details for a symbol.
type SymbolSource interface {
	SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error)
}

// CachedBars is a cache entry with its creation time.
type CachedBars struct {
	Bars      []models.Bar      `json:"bars"`
	Info      models.SymbolInfo `json:"info"`
	CreatedAt time.Time         `json:"created_at"`
}

// HistoricalBarCache stores bar sets keyed by (symbol, timeframe, count).
// Load returns ok=false on miss or when the entry is older than the cache's max age.
type HistoricalBarCache interface {
	Load(ctx context.Context, symbol string, tf Timeframe, count int) (*CachedBars, bool, error)
	Store(ctx context.Context, symbol string, tf Timeframe, count int, bars []models.Bar, info models.SymbolInfo) error
	Invalidate(ctx context.Context, symbol string, tf Timeframe, count int) error
}

// OrderExecutionGateway places market orders and reports account state.
type OrderExecutionGateway interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	Account(ctx context.Context) (models.Account, error)
	OpenPositions(ctx context.Context, symbol string, magic int) ([]models.OpenPosition, error)
}

// BarStore persists ingested bars.
type BarStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, symbol string, tf Timeframe, bars []models.Bar) error
	Health(ctx context.Context) error
	Close() error
}

// ReportStore persists backtest reports and their ledgers.
type ReportStore interface {
	Save(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, runID string) (*models.Report, error)
	List(ctx context.Context, symbol string, limit int) ([]models.ReportMetadata, error)
}

// LedgerPublisher streams ledger events to downstream consumers.
type LedgerPublisher interface {
	PublishLedger(ctx context.Context, runID, symbol string, events []models.LedgerEvent) error
}

// ModelStore persists probability-filter snapshots.
type ModelStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// BarStream delivers closed bars as they complete.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbol string, tf Timeframe) error
	Read(ctx context.Context) (<-chan *StreamBar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// StreamBar is a closed bar received from a BarStream.
type StreamBar struct {
	Symbol    string
	Timeframe Timeframe
	Bar       models.Bar
}

// Metrics records engine and pipeline observations.
type Metrics interface {
	RecordRejection(symbol string, reason models.RejectReason, n int)
	RecordEntry(symbol string, n int)
	RecordEquity(symbol string, equity float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
