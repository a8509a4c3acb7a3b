package usecase

import (
	"context"
	"encoding/json"
	"sync"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/pkg/config"
	"ictbot/pkg/metrics"
)

func scenarioStrategy() config.Strategy {
	cfg := config.DefaultStrategy()
	cfg.UseKillZones = false
	cfg.UseMLMetaLabelling = false
	return cfg
}

func fixedStrategies(cfg config.Strategy) StrategyLoader {
	return func(string) (config.Strategy, error) { return cfg, nil }
}

// fakeFeed serves the tail of bars; bars may be swapped between calls.
type fakeFeed struct {
	mu    sync.Mutex
	bars  []models.Bar
	err   error
	calls []int
}

func (f *fakeFeed) set(bars []models.Bar) {
	f.mu.Lock()
	f.bars = bars
	f.mu.Unlock()
}

func (f *fakeFeed) FetchBars(_ context.Context, _ string, _ domrepo.Timeframe, count int) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, count)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.bars) == 0 {
		return nil, models.ErrDataUnavailable
	}
	from := max(0, len(f.bars)-count)
	return append([]models.Bar(nil), f.bars[from:]...), nil
}

func (f *fakeFeed) Load(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, models.SymbolInfo, error) {
	bars, err := f.FetchBars(ctx, symbol, tf, count)
	return bars, models.DefaultSymbolInfo(symbol), err
}

func (f *fakeFeed) SymbolInfo(_ context.Context, symbol string) (models.SymbolInfo, error) {
	return models.DefaultSymbolInfo(symbol), nil
}

type fakeGateway struct {
	mu        sync.Mutex
	orders    []models.OrderRequest
	positions []models.OpenPosition
	placeErr  error
	account   models.Account
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, req)
	if g.placeErr != nil {
		return models.OrderResult{}, g.placeErr
	}
	return models.OrderResult{Ticket: int64(len(g.orders)), Retcode: 10009, Price: req.Price, Volume: req.Volume}, nil
}

func (g *fakeGateway) Account(context.Context) (models.Account, error) {
	return g.account, nil
}

func (g *fakeGateway) OpenPositions(context.Context, string, int) ([]models.OpenPosition, error) {
	return g.positions, nil
}

type capturedLedger struct {
	runID  string
	symbol string
	events []models.LedgerEvent
}

type fakeLedger struct {
	published []capturedLedger
}

func (l *fakeLedger) PublishLedger(_ context.Context, runID, symbol string, events []models.LedgerEvent) error {
	l.published = append(l.published, capturedLedger{runID, symbol, events})
	return nil
}

type queuedMessage struct {
	msgType string
	payload json.RawMessage
}

type fakeQueue struct {
	messages []queuedMessage
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.messages = append(q.messages, queuedMessage{msgType, raw})
	return nil
}

type fakeBarStore struct {
	mu      sync.Mutex
	batches map[string][]models.Bar
	err     error
}

func (s *fakeBarStore) Init(context.Context) error { return nil }

func (s *fakeBarStore) StoreBatch(_ context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.batches == nil {
		s.batches = make(map[string][]models.Bar)
	}
	key := symbol + "|" + string(tf)
	s.batches[key] = append(s.batches[key], bars...)
	return nil
}

func (s *fakeBarStore) stored(symbol string, tf domrepo.Timeframe) []models.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[symbol+"|"+string(tf)]
}

func (s *fakeBarStore) Health(context.Context) error { return nil }
func (s *fakeBarStore) Close() error                 { return nil }

// recordingProcessor fails the first failN calls.
type recordingProcessor struct {
	mu    sync.Mutex
	failN int
	seen  []*domrepo.StreamBar
}

func (p *recordingProcessor) Process(_ context.Context, sb *domrepo.StreamBar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return context.DeadlineExceeded
	}
	p.seen = append(p.seen, sb)
	return nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// countingMetrics counts RecordError calls by kind.
type countingMetrics struct {
	metrics.Nop
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}
