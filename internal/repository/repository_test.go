package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	domrepo "ictbot/internal/domain/repository"
	"ictbot/internal/testutil"
	"ictbot/pkg/cache"
)

func newBarCache(t *testing.T) (*BarCache, *time.Time) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bc := NewBarCache(mc, 24*time.Hour, nil)
	bc.now = func() time.Time { return clock }
	return bc, &clock
}

func TestBarCacheRoundTripAndStaleness(t *testing.T) {
	ctx := context.Background()
	bc, clock := newBarCache(t)
	bars := testutil.RandomWalk(1, 300)
	info := models.DefaultSymbolInfo("EURUSD")

	_, ok, err := bc.Load(ctx, "EURUSD", domrepo.TFM15, 300)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bc.Store(ctx, "EURUSD", domrepo.TFM15, 300, bars, info))

	got, ok, err := bc.Load(ctx, "EURUSD", domrepo.TFM15, 300)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Bars, 300)
	assert.Equal(t, bars[299].Close, got.Bars[299].Close)
	assert.True(t, bars[0].Time.Equal(got.Bars[0].Time))
	assert.Equal(t, info, got.Info)

	_, ok, _ = bc.Load(ctx, "EURUSD", domrepo.TFM15, 299)
	assert.False(t, ok, "count is part of the key")

	*clock = clock.Add(25 * time.Hour)
	_, ok, err = bc.Load(ctx, "EURUSD", domrepo.TFM15, 300)
	require.NoError(t, err)
	assert.False(t, ok, "entries older than max age are misses")
}

func TestBarCacheListPurgeInvalidate(t *testing.T) {
	ctx := context.Background()
	bc, clock := newBarCache(t)
	bars := testutil.RandomWalk(2, 50)

	require.NoError(t, bc.Store(ctx, "EURUSD", domrepo.TFM15, 50, bars, models.DefaultSymbolInfo("EURUSD")))
	*clock = clock.Add(30 * time.Hour)
	require.NoError(t, bc.Store(ctx, "GBPUSD", domrepo.TFH1, 50, bars, models.DefaultSymbolInfo("GBPUSD")))

	entries, err := bc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "EURUSD", entries[0].Symbol)
	assert.True(t, entries[0].Stale)
	assert.False(t, entries[1].Stale)

	n, err := bc.Purge(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, bc.Invalidate(ctx, "GBPUSD", domrepo.TFH1, 50))
	entries, err = bc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBarCacheKey(t *testing.T) {
	assert.Equal(t, "bars:"+cache.HashKey("EURUSD_M15_1000"), BarCacheKey("EURUSD", domrepo.TFM15, 1000))
}

func sampleReport(runID, symbol string, ts time.Time) *models.Report {
	st := models.NewStatistics()
	st.Entries = 1
	return &models.Report{
		Metadata: models.ReportMetadata{
			RunID: runID, Symbol: symbol, Timeframe: "M15", Bars: 1000,
			PeriodDays: 10, PeriodMonths: 10.0 / 30, Start: ts.Add(-240 * time.Hour), End: ts, Timestamp: ts,
		},
		Metrics:    models.Metrics{Trades: 1, Wins: 1, WinRate: 100, PnL: 42, FinalEquity: 10042},
		Statistics: st.AsMap(),
		Config:     map[string]interface{}{"RR_TAKE_PROFIT": 1.8},
		Ledger: []models.LedgerEvent{
			{Kind: models.LedgerEntry, Side: models.SideBull, Entry: 1.1, SL: 1.09, TP: 1.12, Equity: 10000},
			{Kind: models.LedgerTP, Side: models.SideBull, Entry: 1.1, Exit: 1.12, PnL: 42, Equity: 10042, Realized: true},
		},
	}
}

func TestFileReportStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileReportStore(t.TempDir())
	base := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, sampleReport("run-a", "EURUSD", base)))
	require.NoError(t, store.Save(ctx, sampleReport("run-b", "EURUSD", base.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, sampleReport("run-c", "XAUUSD", base.Add(2*time.Hour))))

	assert.Contains(t, store.Path(sampleReport("run-a", "EURUSD", base).Metadata), "backtest_EURUSD_M15_20240601_083000_run-a.json")

	got, err := store.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.Metrics.PnL)
	require.Len(t, got.Ledger, 2)
	assert.Equal(t, models.SideBull, got.Ledger[1].Side)
	assert.Equal(t, 1, got.Statistics["entries"])

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = store.Get(ctx, "../x")
	assert.ErrorIs(t, err, ErrReportNotFound)

	all, err := store.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].RunID)

	eur, err := store.List(ctx, "EURUSD", 1)
	require.NoError(t, err)
	require.Len(t, eur, 1)
	assert.Equal(t, "run-b", eur[0].RunID)
}

func TestModelStores(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()

	for name, store := range map[string]domrepo.ModelStore{
		"file":  NewFileModelStore(t.TempDir()),
		"cache": NewCacheModelStore(mc),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "ict_meta_model")
			assert.ErrorIs(t, err, ErrModelNotFound)

			require.NoError(t, store.Save(ctx, "ict_meta_model", []byte(`{"schema":2}`)))
			data, err := store.Load(ctx, "ict_meta_model")
			require.NoError(t, err)
			assert.JSONEq(t, `{"schema":2}`, string(data))
		})
	}

	assert.Error(t, NewFileModelStore(t.TempDir()).Save(ctx, "../escape", nil))
}

func TestLedgerMessages(t *testing.T) {
	events := sampleReport("r1", "EURUSD", time.Now()).Ledger
	msgs := ledgerMessages("r1", "EURUSD", events)

	require.Len(t, msgs, 2)
	for i, m := range msgs {
		assert.Equal(t, []byte("r1"), m.Key)
		assert.Equal(t, "r1", m.Headers[HeaderRunID])
		lm, ok := m.Value.(LedgerMessage)
		require.True(t, ok)
		assert.Equal(t, i, lm.Seq)
	}
	assert.Equal(t, "TP", msgs[1].Headers[HeaderKind])
}

func TestSchemaUsesDatabase(t *testing.T) {
	stmts := Schema("ictbot_test")
	require.Len(t, stmts, 5)
	for _, s := range stmts[1:] {
		assert.Contains(t, s, "ictbot_test.")
	}
}
