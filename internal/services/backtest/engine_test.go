package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/features"
	"ictbot/internal/services/mlfilter"
	"ictbot/internal/testutil"
	"ictbot/pkg/config"
)

func scenarioStrategy() config.Strategy {
	cfg := config.DefaultStrategy()
	cfg.UseKillZones = false
	return cfg
}

func run(t *testing.T, cfg config.Strategy, bars []models.Bar) *Result {
	t.Helper()
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	res, err := engine.Run(bars, models.DefaultSymbolInfo("EURUSD"))
	require.NoError(t, err)
	return res
}

func entries(ledger []models.LedgerEvent) []models.LedgerEvent {
	var out []models.LedgerEvent
	for _, ev := range ledger {
		if ev.Kind == models.LedgerEntry {
			out = append(out, ev)
		}
	}
	return out
}

func TestEngine_BullishScenarioTakesLongs(t *testing.T) {
	bars := testutil.BullishScenario()
	res := run(t, scenarioStrategy(), bars)

	taken := entries(res.Ledger)
	require.GreaterOrEqual(t, len(taken), 2)
	for _, ev := range taken {
		assert.Equal(t, models.SideBull, ev.Side)
		assert.Less(t, ev.SL, ev.Entry)
		assert.Greater(t, ev.TP, ev.Entry)
	}

	indices := make([]int, 0, len(taken))
	for _, ev := range taken {
		indices = append(indices, ev.Index)
	}
	assert.Contains(t, indices, 60+testutil.MotifEntryOffset)
	assert.Contains(t, indices, 110+testutil.MotifEntryOffset)

	assert.Less(t, res.Statistics.Rejections[models.RejectNoFVG], len(bars))
	assert.Equal(t, len(taken), res.Statistics.Entries)
}

func TestEngine_TinyBOSAgeBlocksEverything(t *testing.T) {
	cfg := scenarioStrategy()
	cfg.BOSMaxAge = 1

	res := run(t, cfg, testutil.BullishScenario())

	assert.Zero(t, res.Statistics.Entries)
	assert.Zero(t, res.Metrics.Trades)
	assert.Empty(t, res.Ledger)
	// a swing is confirmed two bars after its pivot, so no break is ever recent enough
	vol := res.Statistics.Rejections[models.RejectExtremeVolatility]
	assert.Equal(t, res.Candidates-vol, res.Statistics.Rejections[models.RejectNeutralBias])
}

func TestEngine_CountersAreExclusive(t *testing.T) {
	configs := map[string]config.Strategy{
		"defaults":  config.DefaultStrategy(),
		"no_kz":     scenarioStrategy(),
		"ml_off":    config.DefaultStrategy().WithoutML(),
		"no_filter": noFilters(),
	}
	series := map[string][]models.Bar{
		"scenario": testutil.BullishScenario(),
		"walk":     testutil.RandomWalk(7, 1500),
		"zigzag":   testutil.ZigZag(600, 0.0004),
	}

	for cname, cfg := range configs {
		for sname, bars := range series {
			res := run(t, cfg, bars)
			assert.Equal(t, res.Candidates, res.Statistics.Total(), "%s/%s", cname, sname)
			assert.Equal(t, len(bars)-cfg.WarmupBars, res.Candidates, "%s/%s", cname, sname)
		}
	}
}

func noFilters() config.Strategy {
	cfg := config.DefaultStrategy().WithoutML()
	cfg.UseKillZones = false
	cfg.UseATRFilter = false
	cfg.UseCircuitBreaker = false
	cfg.UseExtremeVolatilityFilter = false
	cfg.UseMarketStructureFilter = false
	cfg.UseFVGMitigationFilter = false
	cfg.CooldownBars = 0
	return cfg
}

func TestEngine_AccountingIdentity(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 4, 5} {
		cfg := noFilters()
		res := run(t, cfg, testutil.RandomWalk(seed, 2000))

		m := res.Metrics
		assert.Equal(t, m.Trades, m.Wins+m.Losses)
		assert.GreaterOrEqual(t, m.WinRate, 0.0)
		assert.LessOrEqual(t, m.WinRate, 100.0)
		assert.LessOrEqual(t, m.MaxDrawdownPct, 0.0)

		realized := 0.0
		for _, ev := range res.Ledger {
			if ev.Kind == models.LedgerTP || ev.Kind == models.LedgerSL {
				realized += ev.PnL
				assert.True(t, ev.Realized)
			}
		}
		assert.InDelta(t, cfg.InitialEquity+realized, m.FinalEquity, 1e-6, "seed %d", seed)
		assert.InDelta(t, m.FinalEquity-cfg.InitialEquity, m.PnL, 1e-9)
	}
}

func TestEngine_OpenPositionAtEndIsUnrealized(t *testing.T) {
	bars := testutil.BullishScenario()[:75]
	res := run(t, scenarioStrategy(), bars)

	require.NotEmpty(t, res.Ledger)
	last := res.Ledger[len(res.Ledger)-1]
	assert.Equal(t, models.LedgerClose, last.Kind)
	assert.False(t, last.Realized)
	assert.Equal(t, len(bars)-1, last.Index)
	assert.Equal(t, bars[len(bars)-1].Close, last.Exit)

	assert.Zero(t, res.Metrics.Trades)
	assert.Equal(t, 1, res.Metrics.OpenAtEnd)
	assert.Equal(t, 10000.0, res.Metrics.FinalEquity)
	assert.Greater(t, res.Metrics.UnrealizedPnL, 0.0)
}

func TestEngine_MLNeverAddsTrades(t *testing.T) {
	for name, bars := range map[string][]models.Bar{
		"scenario": testutil.BullishScenario(),
		"walk":     testutil.RandomWalk(11, 2000),
	} {
		off := scenarioStrategy().WithoutML()
		offRes := run(t, off, bars)

		strict := scenarioStrategy()
		strict.MLThreshold = 0.99
		strictRes := run(t, strict, bars)

		assert.Zero(t, strictRes.Statistics.Entries, name)
		assert.GreaterOrEqual(t, offRes.Statistics.Entries, strictRes.Statistics.Entries, name)

		permissive := scenarioStrategy()
		permissive.MLThreshold = 0
		permRes := run(t, permissive, bars)
		assert.Equal(t, offRes.Statistics.Entries, permRes.Statistics.Entries, name)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	bars := testutil.RandomWalk(3, 1500)
	cfg := noFilters()

	a := run(t, cfg, bars)
	b := run(t, cfg, bars)
	assert.Equal(t, a, b)
}

func TestEngine_InputNotMutated(t *testing.T) {
	bars := testutil.BullishScenario()
	snapshot := append([]models.Bar(nil), bars...)

	run(t, scenarioStrategy(), bars)
	assert.Equal(t, snapshot, bars)
}

func TestEngine_ShortSeries(t *testing.T) {
	res := run(t, config.DefaultStrategy(), testutil.RandomWalk(1, 30))
	assert.Zero(t, res.Candidates)
	assert.Empty(t, res.Ledger)
	assert.Equal(t, 10000.0, res.Metrics.FinalEquity)
}

func TestNewEngine_RejectsInvalidStrategy(t *testing.T) {
	cfg := config.DefaultStrategy()
	cfg.RiskPerTrade = 0
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}

func TestNewEngine_FilterFollowsMLSwitch(t *testing.T) {
	on, err := NewEngine(config.DefaultStrategy())
	require.NoError(t, err)
	assert.NotNil(t, on.Filter())

	off, err := NewEngine(config.DefaultStrategy().WithoutML())
	require.NoError(t, err)
	assert.Nil(t, off.Filter())
}

func TestNewEngine_SchemaFromStrategy(t *testing.T) {
	cfg := scenarioStrategy()
	cfg.FeatureSchema = features.SchemaLegacy.Version
	legacy, err := NewEngine(cfg)
	require.NoError(t, err)
	assert.Equal(t, features.SchemaLegacy, legacy.Filter().Schema())

	res, err := legacy.Run(testutil.BullishScenario(), models.DefaultSymbolInfo("EURUSD"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries(res.Ledger))

	_, err = NewEngine(scenarioStrategy(), WithFilter(legacy.Filter()))
	assert.ErrorIs(t, err, mlfilter.ErrModelIncompatible)
}

func TestPosition_StopWinsTie(t *testing.T) {
	long := &Position{Side: models.SideBull, Entry: 1.1000, SL: 1.0990, TP: 1.1020, Volume: 1}
	bar := models.Bar{Open: 1.1000, High: 1.1025, Low: 1.0985, Close: 1.1010}

	kind, exit, closed := long.resolve(bar)
	require.True(t, closed)
	assert.Equal(t, models.LedgerSL, kind)
	assert.Equal(t, 1.0990, exit)

	short := &Position{Side: models.SideBear, Entry: 1.1000, SL: 1.1010, TP: 1.0980, Volume: 1}
	kind, exit, closed = short.resolve(models.Bar{High: 1.1015, Low: 1.0975})
	require.True(t, closed)
	assert.Equal(t, models.LedgerSL, kind)
	assert.Equal(t, 1.1010, exit)

	_, _, closed = long.resolve(models.Bar{High: 1.1010, Low: 1.0995})
	assert.False(t, closed)
}

func TestPosition_PnL(t *testing.T) {
	info := models.DefaultSymbolInfo("EURUSD")
	long := &Position{Side: models.SideBull, Entry: 1.1000, Volume: 0.5}
	short := &Position{Side: models.SideBear, Entry: 1.1000, Volume: 0.5}

	// 20 pips on half a lot at 10 per pip
	assert.InDelta(t, 100.0, long.pnl(1.1020, info), 1e-6)
	assert.InDelta(t, -100.0, short.pnl(1.1020, info), 1e-6)
}
