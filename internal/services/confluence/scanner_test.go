package confluence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/indicators"
	"ictbot/internal/testutil"
)

const step = 15 * time.Minute

// setup: bullish gap [1.2, 1.3] and bullish break on bar 6, older gap [1.0, 1.2] on bar 2.
func setup(extra ...models.Bar) []models.Bar {
	bars := []models.Bar{
		testutil.OHLC(0, step, 0.92, 1.0, 0.9, 0.95),
		testutil.OHLC(1, step, 0.95, 1.1, 1.0, 1.05),
		testutil.OHLC(2, step, 1.05, 1.5, 1.2, 1.3),
		testutil.OHLC(3, step, 1.25, 1.3, 1.1, 1.2),
		testutil.OHLC(4, step, 1.15, 1.2, 1.0, 1.1),
		testutil.OHLC(5, step, 1.15, 1.4, 1.1, 1.35),
		testutil.OHLC(6, step, 1.35, 1.7, 1.3, 1.6),
	}
	return append(bars, extra...)
}

func mirror(bars []models.Bar) []models.Bar {
	const k = 3.0
	out := make([]models.Bar, len(bars))
	for i, b := range bars {
		out[i] = b
		out[i].Open, out[i].Close = k-b.Open, k-b.Close
		out[i].High, out[i].Low = k-b.Low, k-b.High
	}
	return out
}

func TestFindBullishConfluence(t *testing.T) {
	bars := setup(testutil.OHLC(7, step, 1.6, 1.62, 1.27, 1.28))
	e := indicators.Enrich(bars, indicators.DefaultConfig())

	r, ok := NewScanner(DefaultConfig()).Find(e, 7)
	require.True(t, ok)
	assert.Equal(t, models.SideBull, r.Side)
	assert.Equal(t, 6, r.FVGIndex)
	assert.Equal(t, 6, r.BOSIndex)
	assert.Equal(t, 0, r.BOSDistance)
	assert.Equal(t, 1.3, r.Top)
	assert.Equal(t, 1.2, r.Bot)
	assert.InDelta(t, 1.25, r.Mid, 1e-12)
	assert.InDelta(t, 0.1, r.Gap(), 1e-12)
}

func TestFindBearishConfluenceMirrorsBullish(t *testing.T) {
	bars := mirror(setup(testutil.OHLC(7, step, 1.6, 1.62, 1.27, 1.28)))
	e := indicators.Enrich(bars, indicators.DefaultConfig())

	r, ok := NewScanner(DefaultConfig()).Find(e, 7)
	require.True(t, ok)
	assert.Equal(t, models.SideBear, r.Side)
	assert.Equal(t, 6, r.FVGIndex)
	assert.InDelta(t, 1.8, r.Top, 1e-12)
	assert.InDelta(t, 1.7, r.Bot, 1e-12)
}

func TestFindRequiresRecentBOS(t *testing.T) {
	bars := setup(testutil.OHLC(7, step, 1.6, 1.62, 1.27, 1.28))
	e := indicators.Enrich(bars, indicators.DefaultConfig())

	cfg := DefaultConfig()
	cfg.BOSMaxAge = 0
	_, ok := NewScanner(cfg).Find(e, 7)
	assert.False(t, ok)
}

func TestFindFVGToBOSDistance(t *testing.T) {
	// close 1.15 sits only inside the older gap on bar 2, four bars before the break
	bars := setup(testutil.OHLC(7, step, 1.6, 1.62, 1.12, 1.15))
	e := indicators.Enrich(bars, indicators.DefaultConfig())

	r, ok := NewScanner(DefaultConfig()).Find(e, 7)
	require.True(t, ok)
	assert.Equal(t, 2, r.FVGIndex)
	assert.Equal(t, 4, r.BOSDistance)

	cfg := DefaultConfig()
	cfg.MaxFVGBOSDistance = 3
	_, ok = NewScanner(cfg).Find(e, 7)
	assert.False(t, ok)
}

func TestFindSkipsMitigatedGap(t *testing.T) {
	bars := setup(
		testutil.OHLC(7, step, 1.6, 1.62, 1.18, 1.2),
		testutil.OHLC(8, step, 1.2, 1.3, 1.19, 1.28),
	)
	e := indicators.Enrich(bars, indicators.DefaultConfig())

	_, ok := NewScanner(DefaultConfig()).Find(e, 8)
	assert.False(t, ok)

	cfg := DefaultConfig()
	cfg.UseMitigationFilter = false
	r, ok := NewScanner(cfg).Find(e, 8)
	require.True(t, ok)
	assert.Equal(t, 6, r.FVGIndex)
}

func TestFindStructureFilter(t *testing.T) {
	bars := setup(testutil.OHLC(7, step, 1.6, 1.62, 1.27, 1.28))
	e := indicators.Enrich(bars, indicators.DefaultConfig())
	e.Structure[7] = models.StructureBearish

	_, ok := NewScanner(DefaultConfig()).Find(e, 7)
	assert.False(t, ok)

	cfg := DefaultConfig()
	cfg.UseStructureFilter = false
	_, ok = NewScanner(cfg).Find(e, 7)
	assert.True(t, ok)

	e.Structure[7] = models.StructureBullish
	_, ok = NewScanner(DefaultConfig()).Find(e, 7)
	assert.True(t, ok)
}

func TestFindOutOfRange(t *testing.T) {
	e := indicators.Enrich(setup(), indicators.DefaultConfig())
	_, ok := NewScanner(DefaultConfig()).Find(e, 99)
	assert.False(t, ok)
	_, ok = NewScanner(DefaultConfig()).Find(e, 1)
	assert.False(t, ok)
}

func TestBias(t *testing.T) {
	e := indicators.Enrich(setup(), indicators.DefaultConfig())
	assert.Equal(t, models.SideBull, Bias(e, 6))
	assert.Equal(t, models.SideNone, Bias(e, 5))

	e.BOSDown[6] = true
	assert.Equal(t, models.SideNone, Bias(e, 6))
	e.BOSUp[6] = false
	assert.Equal(t, models.SideBear, Bias(e, 6))
}
