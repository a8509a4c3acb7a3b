package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/features"
	"ictbot/internal/services/indicators"
	"ictbot/internal/services/sessions"
	"ictbot/internal/testutil"
	"ictbot/pkg/config"
)

const evalIdx = 79

var (
	// 09:30 Paris, inside the London kill zone
	inLondon = time.Date(2024, time.March, 5, 8, 30, 0, 0, time.UTC)
	// 04:00 Paris, outside both kill zones
	beforeLondon = time.Date(2024, time.March, 5, 3, 0, 0, 0, time.UTC)
)

// annotated is a hand-built series ending at evalIdx with a bullish break on
// the last bar and an unmitigated bull gap [1.0990, 1.1010] four bars earlier
// that contains the last close. Every bar carries the same ATR.
func annotated(last time.Time, atr float64) *indicators.Enriched {
	n := evalIdx + 1
	e := &indicators.Enriched{
		Bars:           make([]models.Bar, n),
		SwingHigh:      make([]bool, n),
		SwingHighPrice: make([]float64, n),
		SwingHighPivot: make([]int, n),
		SwingLow:       make([]bool, n),
		SwingLowPrice:  make([]float64, n),
		SwingLowPivot:  make([]int, n),
		BOSUp:          make([]bool, n),
		BOSDown:        make([]bool, n),
		BOSStrength:    make([]float64, n),
		BOSAge:         make([]int, n),
		FVGSide:        make([]models.Side, n),
		FVGTop:         make([]float64, n),
		FVGBot:         make([]float64, n),
		OBSide:         make([]models.Side, n),
		OBLow:          make([]float64, n),
		OBHigh:         make([]float64, n),
		ATR:            make([]float64, n),
		Structure:      make([]models.Structure, n),
		StructureScore: make([]float64, n),
	}
	first := last.Add(-time.Duration(evalIdx) * 15 * time.Minute)
	for i := range e.Bars {
		e.Bars[i] = models.Bar{
			Time:       first.Add(time.Duration(i) * 15 * time.Minute),
			Open:       1.1000,
			High:       1.1005,
			Low:        1.0995,
			Close:      1.1000,
			TickVolume: 100,
		}
		e.ATR[i] = atr
		e.SwingHighPivot[i], e.SwingLowPivot[i], e.BOSAge[i] = -1, -1, -1
	}
	e.BOSUp[evalIdx] = true
	e.BOSAge[evalIdx] = 6
	e.BOSStrength[evalIdx] = 0.0003
	e.FVGSide[75] = models.SideBull
	e.FVGTop[75], e.FVGBot[75] = 1.1010, 1.0990
	return e
}

func evalStrategy() config.Strategy {
	cfg := config.DefaultStrategy().WithoutML()
	cfg.UseKillZones = false
	cfg.UseFVGMitigationFilter = false
	return cfg
}

func newTestEvaluator(t *testing.T, cfg config.Strategy) *Evaluator {
	t.Helper()
	require.NoError(t, cfg.Validate())
	cal, err := sessions.FromStrategy(cfg)
	require.NoError(t, err)
	return NewEvaluator(cfg, cal, features.NewExtractor(features.SchemaICT12), nil)
}

func orderBlock(e *indicators.Enriched, k int, side models.Side, low, high float64) {
	e.OBSide[k], e.OBLow[k], e.OBHigh[k] = side, low, high
}

func swingLow(e *indicators.Enriched, k int, price float64) {
	e.SwingLow[k], e.SwingLowPrice[k], e.SwingLowPivot[k] = true, price, k-2
}

func TestEvaluate_StopLossLadder(t *testing.T) {
	tests := []struct {
		name     string
		noOBStop bool
		annotate func(e *indicators.Enriched)
		wantSL   float64
	}{
		{
			name: "order block padded by two pips",
			annotate: func(e *indicators.Enriched) {
				orderBlock(e, 70, models.SideBull, 1.0970, 1.0985)
				swingLow(e, 65, 1.0960)
			},
			wantSL: 1.0968,
		},
		{
			name: "latest same-side order block",
			annotate: func(e *indicators.Enriched) {
				orderBlock(e, 40, models.SideBull, 1.0950, 1.0960)
				orderBlock(e, 70, models.SideBull, 1.0970, 1.0985)
				orderBlock(e, 74, models.SideBear, 1.1020, 1.1050)
			},
			wantSL: 1.0968,
		},
		{
			name: "order block outside the lookback falls through",
			annotate: func(e *indicators.Enriched) {
				orderBlock(e, 15, models.SideBull, 1.0970, 1.0985)
			},
			wantSL: 1.0987,
		},
		{
			name: "lowest confirmed swing in the window",
			annotate: func(e *indicators.Enriched) {
				swingLow(e, 10, 1.0900)
				swingLow(e, 60, 1.0975)
				swingLow(e, 65, 1.0980)
			},
			wantSL: 1.0975,
		},
		{
			name:     "swing when order block stops are off",
			noOBStop: true,
			annotate: func(e *indicators.Enriched) {
				orderBlock(e, 70, models.SideBull, 1.0970, 1.0985)
				swingLow(e, 60, 1.0975)
			},
			wantSL: 1.0975,
		},
		{
			name:     "bar low padded by eight pips",
			annotate: func(*indicators.Enriched) {},
			wantSL:   1.0987,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := evalStrategy()
			cfg.UseOrderBlockSL = !tt.noOBStop
			e := annotated(inLondon, 0.0020)
			tt.annotate(e)

			setup, reason, err := newTestEvaluator(t, cfg).Evaluate(e, evalIdx, NewState(), models.DefaultSymbolInfo("EURUSD"))
			require.NoError(t, err)
			require.Empty(t, reason)

			assert.Equal(t, models.SideBull, setup.Side)
			assert.Equal(t, 1.1000, setup.Entry)
			assert.InDelta(t, tt.wantSL, setup.SL, 1e-9)
			assert.Equal(t, cfg.RRTakeProfit, setup.RR)
			assert.InDelta(t, setup.Entry+cfg.RRTakeProfit*(setup.Entry-setup.SL), setup.TP, 1e-9)
			assert.Equal(t, 75, setup.Confluence.FVGIndex)
			assert.Equal(t, evalIdx, setup.Confluence.BOSIndex)
		})
	}
}

func TestEvaluate_Filters(t *testing.T) {
	tests := []struct {
		name     string
		last     time.Time
		atr      float64
		strategy func(cfg *config.Strategy)
		annotate func(e *indicators.Enriched)
		state    func(st *State)
		want     models.RejectReason
	}{
		{
			name: "accepted",
			last: inLondon, atr: 0.0020,
		},
		{
			name: "breaker tripped for the day",
			last: inLondon, atr: 0.0020,
			state: func(st *State) { st.BreakerTripped = true },
			want:  models.RejectCircuitBreaker,
		},
		{
			name: "cooldown",
			last: inLondon, atr: 0.0020,
			state: func(st *State) { st.LastEntry = evalIdx - 2 },
			want:  models.RejectCooldown,
		},
		{
			name: "cooldown elapsed",
			last: inLondon, atr: 0.0020,
			state: func(st *State) { st.LastEntry = evalIdx - 5 },
		},
		{
			name: "extreme volatility",
			last: inLondon, atr: 0.0020,
			annotate: func(e *indicators.Enriched) { e.ATR[evalIdx] = 0.0070 },
			want:     models.RejectExtremeVolatility,
		},
		{
			name: "outside kill zones",
			last: beforeLondon, atr: 0.0020,
			strategy: func(cfg *config.Strategy) { cfg.UseKillZones = true },
			want:     models.RejectKillZone,
		},
		{
			name: "kill zones off",
			last: beforeLondon, atr: 0.0020,
		},
		{
			name: "neutral bias",
			last: inLondon, atr: 0.0020,
			annotate: func(e *indicators.Enriched) { e.BOSDown[evalIdx] = true },
			want:     models.RejectNeutralBias,
		},
		{
			name: "close outside the gap",
			last: inLondon, atr: 0.0020,
			annotate: func(e *indicators.Enriched) { e.Bars[evalIdx].Close = 1.1015 },
			want:     models.RejectNoFVG,
		},
		{
			name: "gap against the bias",
			last: inLondon, atr: 0.0020,
			annotate: func(e *indicators.Enriched) {
				e.FVGSide[75] = models.SideBear
				e.BOSDown[70] = true
			},
			want: models.RejectBiasMismatch,
		},
		{
			name: "gap too small for ATR",
			last: inLondon, atr: 0.0110,
			want: models.RejectATR,
		},
		{
			name: "gap near the lower ratio edge",
			last: inLondon, atr: 0.0095,
		},
		{
			name: "gap too large for ATR",
			last: inLondon, atr: 0.0007,
			want: models.RejectATR,
		},
		{
			name: "gap near the upper ratio edge",
			last: inLondon, atr: 0.0009,
		},
		{
			name: "ATR filter off",
			last: inLondon, atr: 0.0110,
			strategy: func(cfg *config.Strategy) { cfg.UseATRFilter = false },
		},
		{
			name: "stop within two pips",
			last: inLondon, atr: 0.0020,
			annotate: func(e *indicators.Enriched) { swingLow(e, 70, 1.09985) },
			want:     models.RejectSLTooClose,
		},
		{
			name: "max concurrent trades",
			last: inLondon, atr: 0.0020,
			state: func(st *State) { st.Open = 2 },
			want:  models.RejectMaxTrades,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := evalStrategy()
			if tt.strategy != nil {
				tt.strategy(&cfg)
			}
			e := annotated(tt.last, tt.atr)
			if tt.annotate != nil {
				tt.annotate(e)
			}
			st := NewState()
			if tt.state != nil {
				tt.state(&st)
			}

			setup, reason, err := newTestEvaluator(t, cfg).Evaluate(e, evalIdx, st, models.DefaultSymbolInfo("EURUSD"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, reason)
			if tt.want == "" {
				assert.Equal(t, models.SideBull, setup.Side)
				assert.Greater(t, setup.TP, setup.Entry)
			} else {
				assert.Zero(t, setup.Entry)
			}
		})
	}
}

func TestEvaluate_SessionRR(t *testing.T) {
	cfg := evalStrategy()
	cfg.UseKillZones = true

	setup, reason, err := newTestEvaluator(t, cfg).Evaluate(annotated(inLondon, 0.0020), evalIdx, NewState(), models.DefaultSymbolInfo("EURUSD"))
	require.NoError(t, err)
	require.Empty(t, reason)
	assert.Equal(t, sessions.SessionLondon, setup.Session)
	assert.Equal(t, cfg.RRLondon, setup.RR)

	cfg.UseSessionAdaptiveRR = false
	setup, _, err = newTestEvaluator(t, cfg).Evaluate(annotated(inLondon, 0.0020), evalIdx, NewState(), models.DefaultSymbolInfo("EURUSD"))
	require.NoError(t, err)
	assert.Equal(t, cfg.RRTakeProfit, setup.RR)
}

// After the day's realized drawdown passes the limit no entry is taken until
// the next calendar day.
func TestEngine_BreakerSuppressesRestOfDay(t *testing.T) {
	cfg := noFilters()
	cfg.UseCircuitBreaker = true
	cfg.DailyDDLimit = 0.001
	cal, err := sessions.FromStrategy(cfg)
	require.NoError(t, err)

	hits := 0
	for _, seed := range []int64{7, 11, 23, 42} {
		res := run(t, cfg, testutil.RandomWalk(seed, 2000))
		hits += res.Statistics.Rejections[models.RejectCircuitBreaker]

		equity := cfg.InitialEquity
		day, anchor, tripped := -1, equity, false
		for _, ev := range res.Ledger {
			if d := cal.Day(ev.Time); d != day {
				day, anchor, tripped = d, equity, false
			}
			switch ev.Kind {
			case models.LedgerTP, models.LedgerSL:
				equity = ev.Equity
				if (equity-anchor)/anchor < -cfg.DailyDDLimit {
					tripped = true
				}
			case models.LedgerEntry:
				assert.False(t, tripped, "seed %d: entry at bar %d after the breaker tripped", seed, ev.Index)
			}
		}
	}
	assert.Positive(t, hits)

	off := cfg
	off.UseCircuitBreaker = false
	res := run(t, off, testutil.RandomWalk(7, 2000))
	assert.Zero(t, res.Statistics.Rejections[models.RejectCircuitBreaker])
}
