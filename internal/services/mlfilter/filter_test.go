package mlfilter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/internal/services/features"
	"ictbot/pkg/config"
)

func legacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Schema = features.SchemaLegacy
	return cfg
}

func vec(gap, rng, vol, bias, kz float64) features.Vector {
	return features.Vector{Schema: features.SchemaLegacy, Values: []float64{gap, rng, vol, bias, kz}}
}

func TestColdProbability(t *testing.T) {
	f := New(legacyConfig())

	p, err := f.Predict(vec(0.001, 0.01, 100, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.50+0.20*0.1+0.05+0.05, p, 1e-12)

	p, _ = f.Predict(vec(0.001, 0, 100, 1, 1))
	assert.Equal(t, 0.5, p)

	p, _ = f.Predict(vec(1, 0.1, 100, -1, 1))
	assert.Equal(t, 0.95, p, "clamped")

	p, _ = f.Predict(vec(0, 0.1, 0, 0, 0))
	assert.Equal(t, 0.5, p)
}

func TestPredictRejectsOtherSchema(t *testing.T) {
	f := New(DefaultConfig())
	_, err := f.Predict(vec(1, 1, 1, 1, 1))
	assert.ErrorIs(t, err, ErrModelIncompatible)

	bad := features.Vector{Schema: features.SchemaICT12, Values: make([]float64, 5)}
	_, err = f.Predict(bad)
	assert.ErrorIs(t, err, ErrModelIncompatible)

	assert.ErrorIs(t, f.Observe(bad, true), ErrModelIncompatible)
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	cfg := legacyConfig()
	cfg.MaxSamples = 50
	f := New(cfg)

	for i := 0; i < 120; i++ {
		require.NoError(t, f.Observe(vec(float64(i), 1, 1, 1, 0), i%3 == 0))
		assert.LessOrEqual(t, f.Samples(), 50)
	}

	x, y := f.Window()
	require.Len(t, x, 50)
	require.Len(t, y, 50)
	assert.Equal(t, 70.0, x[0][0])
	assert.Equal(t, 119.0, x[49][0])
}

func separable(n int) ([]features.Vector, []bool) {
	vs := make([]features.Vector, n)
	ls := make([]bool, n)
	for i := range vs {
		won := i%2 == 0
		g := -1.0
		if won {
			g = 1.0
		}
		g += float64(i%7) * 0.01
		vs[i] = vec(g, 1, 0.5, 1, float64(i%2))
		ls[i] = won
	}
	return vs, ls
}

func TestTrainsAfterMinimumSamples(t *testing.T) {
	f := New(legacyConfig())
	vs, ls := separable(60)

	for i := 0; i < 39; i++ {
		require.NoError(t, f.Observe(vs[i], ls[i]))
	}
	assert.False(t, f.Trained())

	for i := 39; i < 60; i++ {
		require.NoError(t, f.Observe(vs[i], ls[i]))
	}
	require.True(t, f.Trained())

	hi, err := f.Predict(vec(1, 1, 0.5, 1, 0))
	require.NoError(t, err)
	lo, err := f.Predict(vec(-1, 1, 0.5, 1, 0))
	require.NoError(t, err)
	assert.Greater(t, hi, 0.5)
	assert.Less(t, lo, 0.5)
}

func TestBalancedWeightsOnSkewedOutcomes(t *testing.T) {
	f := New(legacyConfig())
	// 54 winners on positive gaps, 6 losers on negative gaps
	for i := 0; i < 60; i++ {
		won := i%10 != 0
		g := -1.0
		if won {
			g = 1.0
		}
		require.NoError(t, f.Observe(vec(g, 1, 0.5, 1, 0), won))
	}
	require.True(t, f.Trained())

	p, err := f.Predict(vec(-1, 1, 0.5, 1, 0))
	require.NoError(t, err)
	assert.Less(t, p, 0.5, "minority class must still be recognised")
}

func TestSingleClassWindowStaysCold(t *testing.T) {
	f := New(legacyConfig())
	for i := 0; i < 45; i++ {
		require.NoError(t, f.Observe(vec(0.001, 0.01, 1, 1, 1), true))
	}
	assert.False(t, f.Trained())

	p, err := f.Predict(vec(0.001, 0.01, 1, 1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.62, p, 1e-12)
}

func TestSnapshotRestore(t *testing.T) {
	f := New(legacyConfig())
	vs, ls := separable(60)
	for i := range vs {
		require.NoError(t, f.Observe(vs[i], ls[i]))
	}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	g := New(legacyConfig())
	require.NoError(t, json.Unmarshal(data, g))
	assert.True(t, g.Trained())
	assert.Equal(t, f.Samples(), g.Samples())

	v := vec(0.3, 1, 0.5, 1, 1)
	pf, _ := f.Predict(v)
	pg, _ := g.Predict(v)
	assert.InDelta(t, pf, pg, 1e-12)
}

func TestRestoreRejectsMismatchedSchema(t *testing.T) {
	legacy := New(legacyConfig())
	vs, ls := separable(45)
	for i := range vs {
		require.NoError(t, legacy.Observe(vs[i], ls[i]))
	}

	current := New(DefaultConfig())
	err := current.Restore(legacy.Snapshot())
	assert.ErrorIs(t, err, ErrModelIncompatible)

	s := legacy.Snapshot()
	s.X[3] = s.X[3][:4]
	assert.ErrorIs(t, New(legacyConfig()).Restore(s), ErrModelIncompatible)
}

func TestRestoreTruncatesToWindow(t *testing.T) {
	big := New(legacyConfig())
	vs, ls := separable(120)
	for i := range vs {
		require.NoError(t, big.Observe(vs[i], ls[i]))
	}

	cfg := legacyConfig()
	cfg.MaxSamples = 60
	small := New(cfg)
	require.NoError(t, small.Restore(big.Snapshot()))
	assert.Equal(t, 60, small.Samples())

	// the truncated filter is refitted on what it kept
	recent := New(cfg)
	for i := 60; i < 120; i++ {
		require.NoError(t, recent.Observe(vs[i], ls[i]))
	}
	require.True(t, small.Trained())
	assert.InDeltaSlice(t, recent.model.Weights, small.model.Weights, 1e-9)
	assert.InDelta(t, recent.model.Intercept, small.model.Intercept, 1e-9)
}

func TestRestoreRejectsUnknownSchemaVersion(t *testing.T) {
	s := New(legacyConfig()).Snapshot()
	s.SchemaVersion = 9
	assert.ErrorIs(t, New(legacyConfig()).Restore(s), ErrModelIncompatible)
}

func TestConfigFromStrategySchema(t *testing.T) {
	s := config.DefaultStrategy()
	assert.Equal(t, features.SchemaICT12, ConfigFromStrategy(s).Schema)

	s.FeatureSchema = features.SchemaLegacy.Version
	assert.Equal(t, features.SchemaLegacy, ConfigFromStrategy(s).Schema)
}
