package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()

	assert.Equal(t, 0.01, s.RiskPerTrade)
	assert.Equal(t, 1.8, s.RRTakeProfit)
	assert.Equal(t, 2, s.MaxConcurrentTrades)
	assert.Equal(t, 5, s.CooldownBars)
	assert.Equal(t, 0.40, s.MLThreshold)
	assert.Equal(t, 500, s.MaxMLSamples)
	assert.Equal(t, "Europe/Paris", s.Timezone)
	assert.True(t, s.UseMLMetaLabelling)
	assert.True(t, s.UseCircuitBreaker)
	assert.Equal(t, 161803, s.MagicNumber)
	assert.Equal(t, 2, s.FeatureSchema)
	require.NoError(t, s.Validate())
}

func TestParseStrategyMissingKeysDefault(t *testing.T) {
	s, err := ParseStrategy([]byte(`{"RR_TAKE_PROFIT": 2.5, "USE_ATR_FILTER": false, "SOMETHING_ELSE": 1}`))
	require.NoError(t, err)

	assert.Equal(t, 2.5, s.RRTakeProfit)
	assert.False(t, s.UseATRFilter)
	assert.True(t, s.UseCircuitBreaker)
	assert.Equal(t, 0.01, s.RiskPerTrade)
}

func TestParseStrategyRejectsOutOfRange(t *testing.T) {
	_, err := ParseStrategy([]byte(`{"ML_THRESHOLD": 1.5}`))
	require.Error(t, err)

	_, err = ParseStrategy([]byte(`{"ATR_FVG_MIN_RATIO": 3, "ATR_FVG_MAX_RATIO": 2}`))
	require.Error(t, err)

	_, err = ParseStrategy([]byte(`{"FEATURE_SCHEMA": 3}`))
	require.Error(t, err)

	_, err = ParseStrategy([]byte(`{not json`))
	require.Error(t, err)
}

func TestLoadStrategy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aggressive.json"), []byte(`{"RISK_PER_TRADE": 0.02}`), 0o644))

	s, err := LoadStrategy(dir, "aggressive")
	require.NoError(t, err)
	assert.Equal(t, 0.02, s.RiskPerTrade)

	s, err = LoadStrategy(dir, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategy(), s)

	_, err = LoadStrategy(dir, "missing")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	_, err = LoadStrategy(dir, "../etc/passwd")
	assert.Error(t, err)
}

func TestStrategyAsMapUsesDocumentKeys(t *testing.T) {
	m := DefaultStrategy().AsMap()
	assert.Equal(t, 0.01, m["RISK_PER_TRADE"])
	assert.Equal(t, true, m["USE_ORDER_BLOCK_SL"])
}
