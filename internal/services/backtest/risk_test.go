package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ictbot/internal/domain/models"
)

func TestRiskThrottle(t *testing.T) {
	r := newRiskThrottle(true, 0.01, 0.5)

	r.record(false)
	assert.Equal(t, 0.01, r.Risk())
	r.record(false)
	assert.Equal(t, 0.005, r.Risk())
	r.record(false)
	assert.Equal(t, 0.0025, r.Risk())

	r.record(true)
	assert.Equal(t, 0.005, r.Risk())
	r.record(true)
	assert.Equal(t, 0.01, r.Risk())
	r.record(true)
	assert.Equal(t, 0.01, r.Risk(), "never above nominal")
}

func TestRiskThrottle_Disabled(t *testing.T) {
	r := newRiskThrottle(false, 0.02, 0.5)
	for i := 0; i < 5; i++ {
		r.record(false)
	}
	assert.Equal(t, 0.02, r.Risk())
}

func TestCircuitBreaker(t *testing.T) {
	b := &circuitBreaker{enabled: true, limit: 0.03, day: -1}

	b.roll(20240108, 10000)
	assert.False(t, b.check(9800))
	assert.False(t, b.check(9700), "exactly at the limit is not past it")
	assert.True(t, b.check(9690))
	assert.True(t, b.check(10100), "stays tripped for the rest of the day")

	b.roll(20240108, 10100)
	assert.True(t, b.check(10100))

	b.roll(20240109, 10100)
	assert.False(t, b.check(10100))
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	b := &circuitBreaker{limit: 0.03, day: -1}
	b.roll(1, 10000)
	assert.False(t, b.check(5000))
}

func TestSummarize(t *testing.T) {
	ledger := []models.LedgerEvent{
		{Kind: models.LedgerEntry, Equity: 10000},
		{Kind: models.LedgerTP, PnL: 200, Equity: 10200, Realized: true},
		{Kind: models.LedgerEntry, Equity: 10200},
		{Kind: models.LedgerSL, PnL: -102, Equity: 10098, Realized: true},
		{Kind: models.LedgerSL, PnL: -100.98, Equity: 9997.02, Realized: true},
		{Kind: models.LedgerClose, PnL: 55, Equity: 9997.02},
	}

	m := summarize(10000, ledger)
	assert.Equal(t, 3, m.Trades)
	assert.Equal(t, 1, m.Wins)
	assert.Equal(t, 2, m.Losses)
	assert.InDelta(t, 100.0/3, m.WinRate, 1e-9)
	assert.InDelta(t, -2.98, m.PnL, 1e-9)
	assert.InDelta(t, 9997.02, m.FinalEquity, 1e-9)
	assert.InDelta(t, (9997.02-10200)/10200*100, m.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 1, m.OpenAtEnd)
	assert.Equal(t, 55.0, m.UnrealizedPnL)
}

func TestSummarize_Empty(t *testing.T) {
	m := summarize(10000, nil)
	assert.Zero(t, m.Trades)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.MaxDrawdownPct)
	assert.Equal(t, 10000.0, m.FinalEquity)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func TestExtremeVolatility(t *testing.T) {
	atr := make([]float64, 60)
	for i := range atr {
		atr[i] = 1
	}
	atr[55] = 3.5
	assert.True(t, extremeVolatility(atr, 55, 3))
	assert.False(t, extremeVolatility(atr, 54, 3))
	assert.False(t, extremeVolatility(atr, 40, 3), "needs a full window")

	// zeros from the ATR seed period are ignored
	for i := 0; i < 30; i++ {
		atr[i] = 0
	}
	atr[52] = 3.1
	assert.True(t, extremeVolatility(atr, 52, 3))
}

func TestBreakerUpdate(t *testing.T) {
	b := NewBreaker(true, 0.03)

	assert.False(t, b.Update(20240108, 10000))
	assert.False(t, b.Update(20240108, 9750))
	assert.True(t, b.Update(20240108, 9690))
	assert.True(t, b.Update(20240108, 10100), "stays tripped for the rest of the day")

	assert.False(t, b.Update(20240109, 10100))
	assert.False(t, NewBreaker(false, 0.03).Update(20240109, 1))
}
