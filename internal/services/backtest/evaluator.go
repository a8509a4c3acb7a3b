package backtest

import (
	"fmt"
	"math"
	"sort"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/confluence"
	"ictbot/internal/services/features"
	"ictbot/internal/services/indicators"
	"ictbot/internal/services/mlfilter"
	"ictbot/internal/services/sessions"
	"ictbot/pkg/config"
)

const (
	volatilityWindow = 50
	slLookback       = 60
	obBufferPips     = 2
	fallbackSLPips   = 8
	minStopPips      = 2
	neverEntered     = -1_000_000_000
)

// State is the caller-owned context a bar is evaluated against.
type State struct {
	BreakerTripped bool
	LastEntry      int // bar index of the last accepted entry
	Open           int // currently open positions
}

// NewState returns a state with no prior entry.
func NewState() State { return State{LastEntry: neverEntered} }

// Setup is an accepted entry.
type Setup struct {
	Side       models.Side
	Entry      float64
	SL         float64
	TP         float64
	RR         float64
	Prob       float64
	Session    sessions.Session
	Confluence confluence.Result
	Features   features.Vector
}

// StopDistance is |entry - SL|.
func (s Setup) StopDistance() float64 { return math.Abs(s.Entry - s.SL) }

// Evaluator applies the entry filter chain to one bar. It is shared by the
// backtest engine and the live trader so both take identical decisions.
type Evaluator struct {
	cfg       config.Strategy
	scanner   *confluence.Scanner
	extractor *features.Extractor
	calendar  *sessions.Calendar
	filter    *mlfilter.Filter
}

// NewEvaluator wires the filter chain. filter may be nil when meta-labelling is off.
func NewEvaluator(cfg config.Strategy, calendar *sessions.Calendar, extractor *features.Extractor, filter *mlfilter.Filter) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		scanner:   confluence.NewScanner(confluence.ConfigFromStrategy(cfg)),
		extractor: extractor,
		calendar:  calendar,
		filter:    filter,
	}
}

func (ev *Evaluator) Filter() *mlfilter.Filter { return ev.filter }

// Evaluate runs the filters in precedence order and returns either an accepted
// setup with an empty reason, or the first reason that rejected the bar.
// The only error is a feature/model mismatch in the probability filter.
func (ev *Evaluator) Evaluate(e *indicators.Enriched, idx int, st State, info models.SymbolInfo) (Setup, models.RejectReason, error) {
	cfg := ev.cfg
	bar := e.Bars[idx]

	if st.BreakerTripped {
		return Setup{}, models.RejectCircuitBreaker, nil
	}
	if idx-st.LastEntry < cfg.CooldownBars {
		return Setup{}, models.RejectCooldown, nil
	}
	if cfg.UseExtremeVolatilityFilter && extremeVolatility(e.ATR, idx, cfg.VolatilityMultiplierMax) {
		return Setup{}, models.RejectExtremeVolatility, nil
	}

	session := ev.calendar.SessionAt(bar.Time)
	rr := cfg.RRTakeProfit
	if cfg.UseKillZones {
		if session == sessions.SessionNone {
			return Setup{}, models.RejectKillZone, nil
		}
		rr = ev.calendar.RR(bar.Time)
	}

	bias := confluence.Bias(e, idx)
	if bias == models.SideNone {
		return Setup{}, models.RejectNeutralBias, nil
	}
	r, ok := ev.scanner.Find(e, idx)
	if !ok {
		return Setup{}, models.RejectNoFVG, nil
	}
	if r.Side != bias {
		return Setup{}, models.RejectBiasMismatch, nil
	}

	if atr := e.ATR[idx]; cfg.UseATRFilter && atr > 0 {
		ratio := r.Gap() / atr
		if ratio < cfg.ATRFVGMinRatio || ratio > cfg.ATRFVGMaxRatio {
			return Setup{}, models.RejectATR, nil
		}
	}

	setup := Setup{Side: r.Side, Entry: bar.Close, RR: rr, Prob: 0.5, Session: session, Confluence: r}
	if ev.filter != nil {
		setup.Features = ev.extractor.Extract(e, idx, r, session != sessions.SessionNone)
		p, err := ev.filter.Predict(setup.Features)
		if err != nil {
			return Setup{}, "", fmt.Errorf("predict at bar %d: %w", idx, err)
		}
		setup.Prob = p
		if p < cfg.MLThreshold {
			return Setup{}, models.RejectML, nil
		}
	}

	pip := info.Pip()
	setup.SL = ev.stopLoss(e, idx, r.Side, pip)
	dist := (setup.Entry - setup.SL) * r.Side.Sign()
	if dist <= minStopPips*pip {
		return Setup{}, models.RejectSLTooClose, nil
	}
	setup.TP = setup.Entry + r.Side.Sign()*rr*dist

	if st.Open >= cfg.MaxConcurrentTrades {
		return Setup{}, models.RejectMaxTrades, nil
	}
	return setup, "", nil
}

// stopLoss prefers the latest same-side order block in [idx-60, idx) padded by
// two pips, then the extreme confirmed swing in that window, then the bar
// extreme padded by eight pips.
func (ev *Evaluator) stopLoss(e *indicators.Enriched, idx int, side models.Side, pip float64) float64 {
	start := idx - slLookback
	if start < 0 {
		start = 0
	}
	bar := e.Bars[idx]

	if ev.cfg.UseOrderBlockSL {
		for k := idx - 1; k >= start; k-- {
			if e.OBSide[k] != side {
				continue
			}
			if side == models.SideBull {
				return e.OBLow[k] - obBufferPips*pip
			}
			return e.OBHigh[k] + obBufferPips*pip
		}
	}

	found := false
	extreme := 0.0
	for k := start; k < idx; k++ {
		if side == models.SideBull && e.SwingLow[k] {
			if !found || e.SwingLowPrice[k] < extreme {
				extreme = e.SwingLowPrice[k]
			}
			found = true
		}
		if side == models.SideBear && e.SwingHigh[k] {
			if !found || e.SwingHighPrice[k] > extreme {
				extreme = e.SwingHighPrice[k]
			}
			found = true
		}
	}
	if found {
		return extreme
	}

	if side == models.SideBull {
		return bar.Low - fallbackSLPips*pip
	}
	return bar.High + fallbackSLPips*pip
}

// extremeVolatility reports whether ATR at idx exceeds mult times the median of
// the positive ATR values over the previous 50 bars.
func extremeVolatility(atr []float64, idx int, mult float64) bool {
	if idx < volatilityWindow {
		return false
	}
	window := make([]float64, 0, volatilityWindow)
	for _, v := range atr[idx-volatilityWindow : idx] {
		if v > 0 {
			window = append(window, v)
		}
	}
	med := median(window)
	return med > 0 && atr[idx] > med*mult
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
