package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/confluence"
	"ictbot/internal/services/indicators"
	"ictbot/internal/testutil"
)

func flatBars(n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = testutil.OHLC(i, 15*time.Minute, 1.1, 1.2, 1.0, 1.1)
	}
	return bars
}

func TestExtractICT12(t *testing.T) {
	e := indicators.Enrich(flatBars(60), indicators.DefaultConfig())
	r := confluence.Result{Side: models.SideBull, Top: 1.15, Bot: 1.05, BOSDistance: 3}

	v := NewExtractor(SchemaICT12).Extract(e, 59, r, true)
	require.True(t, v.Valid())
	require.Len(t, v.Values, 12)
	assert.Equal(t, SchemaICT12, v.Schema)

	assert.InDelta(t, 0.1, v.Gap(), 1e-12)
	assert.InDelta(t, 0.2, v.Range(), 1e-12)
	assert.InDelta(t, 100, v.Values[IdxVolume], 1e-12)
	assert.Zero(t, v.Bias())
	assert.Equal(t, 1.0, v.KillZone())
	assert.InDelta(t, 0.2/1.1, v.Values[IdxATRNorm], 1e-9)
	assert.InDelta(t, 0.5, v.Values[IdxGapATR], 1e-9)
	assert.InDelta(t, 0.25, v.Values[IdxBOSProximity], 1e-12)
	assert.Zero(t, v.Values[IdxStructure])
	assert.Zero(t, v.Values[IdxBOSStrength])
	assert.InDelta(t, 0.5, v.Values[IdxGapPosition], 1e-9)
	assert.Zero(t, v.Values[IdxMomentum])
}

func TestExtractLegacy(t *testing.T) {
	e := indicators.Enrich(flatBars(60), indicators.DefaultConfig())
	r := confluence.Result{Side: models.SideBull, Top: 1.15, Bot: 1.05}

	v := NewExtractor(SchemaLegacy).Extract(e, 59, r, false)
	require.Len(t, v.Values, 5)
	assert.True(t, v.Valid())
	assert.Zero(t, v.KillZone())
}

func TestExtractShortWindow(t *testing.T) {
	e := indicators.Enrich(flatBars(8), indicators.DefaultConfig())
	v := NewExtractor(SchemaICT12).Extract(e, 7, confluence.Result{Top: 1.1, Bot: 1.1}, false)

	assert.Equal(t, 1e-6, v.Range())
	assert.Zero(t, v.Values[IdxVolume])
	assert.Equal(t, 0.5, v.Values[IdxGapPosition], "zero-height gap sits in the middle")
}

func TestExtractDoesNotLookAhead(t *testing.T) {
	bars := testutil.RandomWalk(3, 300)
	r := confluence.Result{Side: models.SideBear, Top: 1.102, Bot: 1.098, BOSDistance: 4}
	x := NewExtractor(SchemaICT12)

	for _, idx := range []int{20, 120, 250} {
		full := x.Extract(indicators.Enrich(bars, indicators.DefaultConfig()), idx, r, true)
		prefix := x.Extract(indicators.Enrich(bars[:idx+1], indicators.DefaultConfig()), idx, r, true)
		assert.Equal(t, prefix, full, "idx %d", idx)
	}
}

func TestMomentum(t *testing.T) {
	bars := flatBars(10)
	bars[9].Close = 1.21
	assert.InDelta(t, 0.1, momentum(bars, 9), 1e-9)
	assert.Zero(t, momentum(bars, 3))
}

func TestSchemaByVersion(t *testing.T) {
	s, err := SchemaByVersion(1)
	require.NoError(t, err)
	assert.Equal(t, SchemaLegacy, s)

	_, err = SchemaByVersion(9)
	assert.Error(t, err)
}
