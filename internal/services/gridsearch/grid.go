// Package gridsearch evaluates the backtest engine over a cartesian grid of
// strategy parameters and ranks the combinations by a composite score.
package gridsearch

import (
	"math"

	"ictbot/internal/domain/models"
	"ictbot/pkg/config"
)

// Grid lists the candidate values of each tuned parameter.
type Grid struct {
	RiskPerTrade        []float64 `json:"RISK_PER_TRADE"`
	RRTakeProfit        []float64 `json:"RR_TAKE_PROFIT"`
	MaxConcurrentTrades []int     `json:"MAX_CONCURRENT_TRADES"`
	CooldownBars        []int     `json:"COOLDOWN_BARS"`
	MLThreshold         []float64 `json:"ML_THRESHOLD"`
	UseATRFilter        []bool    `json:"USE_ATR_FILTER"`
	UseCircuitBreaker   []bool    `json:"USE_CIRCUIT_BREAKER"`
}

// DefaultGrid is the 1728-combination search space.
func DefaultGrid() Grid {
	return Grid{
		RiskPerTrade:        []float64{0.005, 0.01, 0.02},
		RRTakeProfit:        []float64{1.5, 1.8, 2.0, 2.5},
		MaxConcurrentTrades: []int{1, 2, 3},
		CooldownBars:        []int{3, 5, 8},
		MLThreshold:         []float64{0.3, 0.4, 0.5, 0.6},
		UseATRFilter:        []bool{true, false},
		UseCircuitBreaker:   []bool{true, false},
	}
}

func (g Grid) Size() int {
	return len(g.RiskPerTrade) * len(g.RRTakeProfit) * len(g.MaxConcurrentTrades) *
		len(g.CooldownBars) * len(g.MLThreshold) * len(g.UseATRFilter) * len(g.UseCircuitBreaker)
}

// Combinations expands the grid in a fixed order, the last parameter varying
// fastest. The position in the returned slice is the combination id.
func (g Grid) Combinations() []models.GridParams {
	out := make([]models.GridParams, 0, g.Size())
	for _, risk := range g.RiskPerTrade {
		for _, rr := range g.RRTakeProfit {
			for _, maxTrades := range g.MaxConcurrentTrades {
				for _, cooldown := range g.CooldownBars {
					for _, threshold := range g.MLThreshold {
						for _, atr := range g.UseATRFilter {
							for _, breaker := range g.UseCircuitBreaker {
								out = append(out, models.GridParams{
									RiskPerTrade:        risk,
									RRTakeProfit:        rr,
									MaxConcurrentTrades: maxTrades,
									CooldownBars:        cooldown,
									MLThreshold:         threshold,
									UseATRFilter:        atr,
									UseCircuitBreaker:   breaker,
								})
							}
						}
					}
				}
			}
		}
	}
	return out
}

// Apply overlays p on a copy of base. Session-adaptive RR is switched off so
// the swept RR_TAKE_PROFIT is the target every trade actually uses.
func Apply(base config.Strategy, p models.GridParams) config.Strategy {
	s := base
	s.RiskPerTrade = p.RiskPerTrade
	s.RRTakeProfit = p.RRTakeProfit
	s.UseSessionAdaptiveRR = false
	s.MaxConcurrentTrades = p.MaxConcurrentTrades
	s.CooldownBars = p.CooldownBars
	s.MLThreshold = p.MLThreshold
	s.UseATRFilter = p.UseATRFilter
	s.UseCircuitBreaker = p.UseCircuitBreaker
	return s
}

// Sharpe is a trade-count proxy: win ratio times sqrt(trades), damped by drawdown.
func Sharpe(m models.Metrics) float64 {
	if m.Trades == 0 || m.WinRate <= 0 {
		return 0
	}
	return (m.WinRate / 100) * math.Sqrt(float64(m.Trades)) / (1 + math.Abs(m.MaxDrawdownPct)/100)
}

// Composite weighs return 40%, sharpe 30%, win rate 20% and drawdown 10%.
func Composite(pnlPct, sharpe, winRate, maxDD float64) float64 {
	return 0.40*clamp(pnlPct, 0, 100)/100 +
		0.30*clamp(sharpe, 0, 3)/3 +
		0.20*winRate/100 +
		0.10*(1-math.Abs(maxDD)/100)
}

// Score fills the derived ranking fields of r from its metrics.
func Score(r *models.GridResult, initialEquity float64) {
	if initialEquity > 0 {
		r.PnLPct = r.Metrics.PnL / initialEquity * 100
	}
	r.Sharpe = Sharpe(r.Metrics)
	r.Composite = Composite(r.PnLPct, r.Sharpe, r.Metrics.WinRate, r.Metrics.MaxDrawdownPct)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
