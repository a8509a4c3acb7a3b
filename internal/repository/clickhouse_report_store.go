package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	pkgch "ictbot/pkg/clickhouse"
	"ictbot/pkg/logger"
)

var ErrReportNotFound = domrepo.ErrReportNotFound

// CHReportStore persists reports in backtest_reports and their ledgers in backtest_ledger.
type CHReportStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *logger.Logger
}

func NewCHReportStore(ch *pkgch.Client, lgr *logger.Logger) *CHReportStore {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &CHReportStore{ch: ch, db: ch.DB(), l: lgr}
}

func (s *CHReportStore) table(name string) string {
	return s.ch.Database() + "." + name
}

const reportColumns = `run_id, symbol, timeframe, bars, period_days, period_months, period_start, period_end,
    created_at, trades, wins, losses, winrate, pnl, max_dd, equity_final, open_at_end, statistics, config`

func (s *CHReportStore) Save(ctx context.Context, r *models.Report) error {
	stats, err := json.Marshal(r.Statistics)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	md, m := r.Metadata, r.Metrics
	q := fmt.Sprintf(`INSERT INTO %s (%s)`, s.table("backtest_reports"), reportColumns)
	err = s.ch.InsertBatch(ctx, q, 1, func(int) []interface{} {
		return []interface{}{
			md.RunID, md.Symbol, md.Timeframe, uint32(md.Bars), md.PeriodDays, md.PeriodMonths,
			md.Start.UTC(), md.End.UTC(), md.Timestamp.UTC(),
			uint32(m.Trades), uint32(m.Wins), uint32(m.Losses), m.WinRate, m.PnL, m.MaxDrawdownPct,
			m.FinalEquity, uint32(m.OpenAtEnd), string(stats), string(cfg),
		}
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", md.RunID, err)
	}

	q = fmt.Sprintf(`INSERT INTO %s (run_id, seq, kind, time, bar, side, entry, exit, sl, tp, rr, volume, prob, pnl, equity, realized)`,
		s.table("backtest_ledger"))
	err = s.ch.InsertBatch(ctx, q, len(r.Ledger), func(i int) []interface{} {
		ev := r.Ledger[i]
		var realized uint8
		if ev.Realized {
			realized = 1
		}
		return []interface{}{
			md.RunID, uint32(i), string(ev.Kind), ev.Time.UTC(), uint32(ev.Index), ev.Side.String(),
			ev.Entry, ev.Exit, ev.SL, ev.TP, ev.RR, ev.Volume, ev.Prob, ev.PnL, ev.Equity, realized,
		}
	})
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", md.RunID, err)
	}

	s.l.Info("report stored",
		logger.String("run_id", md.RunID),
		logger.String("symbol", md.Symbol),
		logger.Int("ledger_rows", len(r.Ledger)),
	)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var (
		r                  models.Report
		bars, trades, wins uint32
		losses, openAtEnd  uint32
		stats, cfg         string
	)
	md, m := &r.Metadata, &r.Metrics
	err := row.Scan(&md.RunID, &md.Symbol, &md.Timeframe, &bars, &md.PeriodDays, &md.PeriodMonths,
		&md.Start, &md.End, &md.Timestamp, &trades, &wins, &losses, &m.WinRate, &m.PnL,
		&m.MaxDrawdownPct, &m.FinalEquity, &openAtEnd, &stats, &cfg)
	if err != nil {
		return nil, err
	}
	md.Bars, m.Trades, m.Wins, m.Losses, m.OpenAtEnd = int(bars), int(trades), int(wins), int(losses), int(openAtEnd)

	if err := json.Unmarshal([]byte(stats), &r.Statistics); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &r, nil
}

// Get loads a report and its ledger.
func (s *CHReportStore) Get(ctx context.Context, runID string) (*models.Report, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = ? LIMIT 1`, reportColumns, s.table("backtest_reports"))
	r, err := scanReport(s.db.QueryRowContext(ctx, q, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", runID, err)
	}

	q = fmt.Sprintf(`
        SELECT kind, time, bar, side, entry, exit, sl, tp, rr, volume, prob, pnl, equity, realized
        FROM %s WHERE run_id = ? ORDER BY seq`, s.table("backtest_ledger"))
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("get ledger %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev         models.LedgerEvent
			kind, side string
			bar        uint32
			realized   uint8
		)
		if err := rows.Scan(&kind, &ev.Time, &bar, &side, &ev.Entry, &ev.Exit, &ev.SL, &ev.TP, &ev.RR,
			&ev.Volume, &ev.Prob, &ev.PnL, &ev.Equity, &realized); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		ev.Kind = models.LedgerKind(kind)
		ev.Index = int(bar)
		ev.Realized = realized == 1
		_ = ev.Side.UnmarshalText([]byte(side))
		r.Ledger = append(r.Ledger, ev)
	}
	return r, rows.Err()
}

// List returns the newest report headers, optionally for one symbol.
func (s *CHReportStore) List(ctx context.Context, symbol string, limit int) ([]models.ReportMetadata, error) {
	var (
		where strings.Builder
		args  []interface{}
	)
	if symbol != "" {
		where.WriteString("WHERE symbol = ?")
		args = append(args, symbol)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
        SELECT run_id, symbol, timeframe, bars, period_days, period_months, period_start, period_end, created_at
        FROM %s %s
        ORDER BY created_at DESC
        LIMIT ?`, s.table("backtest_reports"), where.String())
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]models.ReportMetadata, 0, limit)
	for rows.Next() {
		var md models.ReportMetadata
		var bars uint32
		if err := rows.Scan(&md.RunID, &md.Symbol, &md.Timeframe, &bars, &md.PeriodDays, &md.PeriodMonths,
			&md.Start, &md.End, &md.Timestamp); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		md.Bars = int(bars)
		out = append(out, md)
	}
	return out, rows.Err()
}

var _ domrepo.ReportStore = (*CHReportStore)(nil)
