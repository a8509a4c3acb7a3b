package gridsearch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/sessions"
	"ictbot/internal/testutil"
	"ictbot/pkg/config"
)

func TestDefaultGrid_Combinations(t *testing.T) {
	g := DefaultGrid()
	combos := g.Combinations()

	require.Len(t, combos, 1728)
	assert.Equal(t, g.Size(), len(combos))

	assert.Equal(t, models.GridParams{
		RiskPerTrade: 0.005, RRTakeProfit: 1.5, MaxConcurrentTrades: 1, CooldownBars: 3,
		MLThreshold: 0.3, UseATRFilter: true, UseCircuitBreaker: true,
	}, combos[0])
	assert.False(t, combos[1].UseCircuitBreaker, "last parameter varies fastest")
	assert.Equal(t, 0.02, combos[len(combos)-1].RiskPerTrade)

	seen := make(map[models.GridParams]bool, len(combos))
	for _, c := range combos {
		assert.False(t, seen[c], "duplicate %+v", c)
		seen[c] = true
	}
}

func TestApplyUsesSweptRR(t *testing.T) {
	base := config.DefaultStrategy()
	require.True(t, base.UseSessionAdaptiveRR)
	require.True(t, base.UseKillZones)

	p := DefaultGrid().Combinations()[0]
	s := Apply(base, p)
	assert.False(t, s.UseSessionAdaptiveRR)
	assert.Equal(t, p.RRTakeProfit, s.RRTakeProfit)
	assert.True(t, base.UseSessionAdaptiveRR, "base is not modified")

	cal, err := sessions.FromStrategy(s)
	require.NoError(t, err)
	london := time.Date(2024, 3, 5, 9, 0, 0, 0, cal.Location())
	require.Equal(t, sessions.SessionLondon, cal.SessionAt(london))
	assert.Equal(t, p.RRTakeProfit, cal.RR(london))
}

func TestComposite(t *testing.T) {
	tests := []struct {
		name                         string
		pnlPct, sharpe, wr, dd, want float64
	}{
		{"zero", 0, 0, 0, 0, 0.10},
		{"clamped high", 250, 9, 100, 0, 1.0},
		{"negative pnl clamps to zero", -40, 0, 50, -20, 0.20*0.5 + 0.10*0.8},
		{"mixed", 10, 1.5, 60, -5, 0.40*0.1 + 0.30*0.5 + 0.20*0.6 + 0.10*0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Composite(tt.pnlPct, tt.sharpe, tt.wr, tt.dd), 1e-12)
		})
	}
}

func TestSharpe(t *testing.T) {
	assert.Zero(t, Sharpe(models.Metrics{}))
	assert.Zero(t, Sharpe(models.Metrics{Trades: 4, WinRate: 0}))
	assert.InDelta(t, 0.5*2/1.1, Sharpe(models.Metrics{Trades: 4, WinRate: 50, MaxDrawdownPct: -10}), 1e-12)
}

func TestScore(t *testing.T) {
	r := models.GridResult{Metrics: models.Metrics{Trades: 9, WinRate: 100, PnL: 500}}
	Score(&r, 10000)
	assert.InDelta(t, 5.0, r.PnLPct, 1e-12)
	assert.InDelta(t, 3.0, r.Sharpe, 1e-12)
	assert.InDelta(t, 0.40*0.05+0.30+0.20+0.10, r.Composite, 1e-12)
}

func TestRank(t *testing.T) {
	results := []models.GridResult{
		{ID: 0, Composite: 0.3},
		{ID: 1, Composite: 0.5},
		{ID: 2, Composite: 0.3},
		{ID: 3, Composite: 0.7},
	}
	Rank(results)

	ids := []int{results[0].ID, results[1].ID, results[2].ID, results[3].ID}
	assert.Equal(t, []int{3, 1, 0, 2}, ids)
	assert.Len(t, Top(results, 2), 2)
	assert.Len(t, Top(results, 10), 4)
}

func smallGrid() Grid {
	return Grid{
		RiskPerTrade:        []float64{0.01},
		RRTakeProfit:        []float64{1.5, 2.0},
		MaxConcurrentTrades: []int{1, 2},
		CooldownBars:        []int{5},
		MLThreshold:         []float64{0.4},
		UseATRFilter:        []bool{true, false},
		UseCircuitBreaker:   []bool{true},
	}
}

func TestRunner_Run(t *testing.T) {
	bars := testutil.BullishScenario()
	info := models.DefaultSymbolInfo("EURUSD")
	base := config.DefaultStrategy()
	base.UseKillZones = false
	combos := smallGrid().Combinations()

	var calls atomic.Int32
	r := NewRunner(WithWorkers(3), WithProgress(func(done, total int) {
		calls.Add(1)
		assert.Equal(t, len(combos), total)
	}))

	results, err := r.Run(context.Background(), base, bars, info, combos)
	require.NoError(t, err)
	require.Len(t, results, len(combos))
	assert.Equal(t, int32(len(combos)), calls.Load())

	ids := make(map[int]bool)
	for i, res := range results {
		assert.Empty(t, res.Err)
		assert.Equal(t, combos[res.ID], res.Params)
		ids[res.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Composite, res.Composite)
		}
	}
	assert.Len(t, ids, len(combos))

	// same answer with one worker
	serial, err := NewRunner(WithWorkers(1)).Run(context.Background(), base, bars, info, combos)
	require.NoError(t, err)
	assert.Equal(t, results, serial)
}

func TestRunner_InvalidCombination(t *testing.T) {
	combos := []models.GridParams{{RiskPerTrade: 0, RRTakeProfit: 1.5, MaxConcurrentTrades: 1, MLThreshold: 0.4}}
	results, err := NewRunner().Run(context.Background(), config.DefaultStrategy(), testutil.RandomWalk(1, 200),
		models.DefaultSymbolInfo("EURUSD"), combos)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Err)
	assert.Zero(t, results[0].Composite)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(WithWorkers(2)).Run(ctx, config.DefaultStrategy(), testutil.RandomWalk(1, 300),
		models.DefaultSymbolInfo("EURUSD"), DefaultGrid().Combinations())
	assert.ErrorIs(t, err, context.Canceled)
}
