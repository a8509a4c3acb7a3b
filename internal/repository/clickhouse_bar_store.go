package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	pkgch "ictbot/pkg/clickhouse"
	"ictbot/pkg/logger"
)

// CHBarStore keeps bars and symbol contract details in ClickHouse. It serves
// history chunks for the feed and accepts ingested bars.
type CHBarStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *logger.Logger
}

func NewCHBarStore(ch *pkgch.Client, lgr *logger.Logger) *CHBarStore {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &CHBarStore{ch: ch, db: ch.DB(), l: lgr}
}

func (s *CHBarStore) table(name string) string {
	return s.ch.Database() + "." + name
}

func (s *CHBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.ch.Database()))
}

// FetchRange returns count bars ending pos bars before the newest, oldest first.
func (s *CHBarStore) FetchRange(ctx context.Context, symbol string, tf domrepo.Timeframe, pos, count int) ([]models.Bar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT time, open, high, low, close, tick_volume, spread
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY time DESC
        LIMIT ? OFFSET ?`, s.table("bars"))

	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), count, pos)
	if err != nil {
		s.l.Error("clickhouse fetch_range query error",
			logger.String("symbol", symbol),
			logger.String("tf", string(tf)),
			logger.Int("pos", pos),
			logger.Error(err),
		)
		return nil, fmt.Errorf("fetch bars %s %s: %w", symbol, tf, err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, count)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.TickVolume, &b.Spread); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	s.l.Debug("clickhouse fetch_range ok",
		logger.String("symbol", symbol),
		logger.String("tf", string(tf)),
		logger.Int("pos", pos),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// StoreBatch inserts bars. Re-sent bars collapse on merge (ReplacingMergeTree).
func (s *CHBarStore) StoreBatch(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, timeframe, time, open, high, low, close, tick_volume, spread)`, s.table("bars"))
	err := s.ch.InsertBatch(ctx, q, len(bars), func(i int) []interface{} {
		b := bars[i]
		return []interface{}{symbol, string(tf), b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.TickVolume, b.Spread}
	})
	if err != nil {
		return fmt.Errorf("store bars %s %s: %w", symbol, tf, err)
	}
	return nil
}

// SymbolInfo reads contract details, falling back to a five-digit FX default
// for symbols the table does not know.
func (s *CHBarStore) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	q := fmt.Sprintf(`
        SELECT digits, point, pip_size, tick_size, tick_value, contract_size, volume_min, volume_max, volume_step
        FROM %s FINAL
        WHERE symbol = ?
        LIMIT 1`, s.table("symbols"))

	info := models.SymbolInfo{Symbol: symbol}
	var digits uint8
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(&digits, &info.Point, &info.PipSize, &info.TickSize,
		&info.TickValue, &info.ContractSize, &info.VolumeMin, &info.VolumeMax, &info.VolumeStep)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.DefaultSymbolInfo(symbol), nil
	case err != nil:
		return models.SymbolInfo{}, fmt.Errorf("symbol info %s: %w", symbol, err)
	}
	info.Digits = int(digits)
	return info, nil
}

// UpsertSymbol records contract details for a symbol.
func (s *CHBarStore) UpsertSymbol(ctx context.Context, info models.SymbolInfo) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, digits, point, pip_size, tick_size, tick_value, contract_size, volume_min, volume_max, volume_step)`, s.table("symbols"))
	return s.ch.InsertBatch(ctx, q, 1, func(int) []interface{} {
		return []interface{}{info.Symbol, uint8(info.Digits), info.Point, info.PipSize, info.TickSize,
			info.TickValue, info.ContractSize, info.VolumeMin, info.VolumeMax, info.VolumeStep}
	})
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is owned by the caller.
func (s *CHBarStore) Close() error {
	return nil
}

var (
	_ domrepo.RangeSource  = (*CHBarStore)(nil)
	_ domrepo.SymbolSource = (*CHBarStore)(nil)
	_ domrepo.BarStore     = (*CHBarStore)(nil)
)
