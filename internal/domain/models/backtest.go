package models

import (
	"time"
)

// LedgerKind tags a ledger row.
type LedgerKind string

const (
	LedgerEntry LedgerKind = "ENTRY"
	LedgerTP    LedgerKind = "TP"
	LedgerSL    LedgerKind = "SL"
	LedgerClose LedgerKind = "CLOSE"
)

// LedgerEvent is one row of a backtest ledger. Equity moves only on TP and SL rows;
// CLOSE rows mark still-open positions to the last close and carry Realized=false.
type LedgerEvent struct {
	Kind     LedgerKind `json:"type"`
	Time     time.Time  `json:"time"`
	Index    int        `json:"index"`
	Side     Side       `json:"side"`
	Entry    float64    `json:"entry"`
	Exit     float64    `json:"exit,omitempty"`
	SL       float64    `json:"sl"`
	TP       float64    `json:"tp"`
	RR       float64    `json:"rr"`
	Volume   float64    `json:"volume"`
	Prob     float64    `json:"prob"`
	PnL      float64    `json:"pnl"`
	Equity   float64    `json:"equity"`
	Realized bool       `json:"realized"`
}

// RejectReason names a filter that suppressed a candidate bar.
type RejectReason string

const (
	RejectCircuitBreaker    RejectReason = "circuit_breaker_hit"
	RejectCooldown          RejectReason = "cooldown_filtered"
	RejectExtremeVolatility RejectReason = "extreme_volatility_filtered"
	RejectKillZone          RejectReason = "killzone_filtered"
	RejectNeutralBias       RejectReason = "neutral_bias"
	RejectNoFVG             RejectReason = "no_fvg"
	RejectBiasMismatch      RejectReason = "fvg_bias_mismatch"
	RejectATR               RejectReason = "atr_filtered"
	RejectML                RejectReason = "ml_filtered"
	RejectSLTooClose        RejectReason = "sl_too_close"
	RejectMaxTrades         RejectReason = "max_trades_reached"
)

// RejectReasons lists every reason in filter order.
var RejectReasons = []RejectReason{
	RejectCircuitBreaker,
	RejectCooldown,
	RejectExtremeVolatility,
	RejectKillZone,
	RejectNeutralBias,
	RejectNoFVG,
	RejectBiasMismatch,
	RejectATR,
	RejectML,
	RejectSLTooClose,
	RejectMaxTrades,
}

// Statistics holds per-reason rejection counts plus accepted entries.
type Statistics struct {
	Rejections map[RejectReason]int `json:"rejections"`
	Entries    int                  `json:"entries"`
}

// NewStatistics returns statistics with every reason present at zero.
func NewStatistics() Statistics {
	s := Statistics{Rejections: make(map[RejectReason]int, len(RejectReasons))}
	for _, r := range RejectReasons {
		s.Rejections[r] = 0
	}
	return s
}

// Total is the number of candidate bars accounted for.
func (s Statistics) Total() int {
	n := s.Entries
	for _, c := range s.Rejections {
		n += c
	}
	return n
}

// Metrics summarises a backtest. Only realized TP/SL outcomes are counted.
type Metrics struct {
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"winrate"`
	PnL            float64 `json:"pnl"`
	MaxDrawdownPct float64 `json:"max_dd"`
	FinalEquity    float64 `json:"equity_final"`
	OpenAtEnd      int     `json:"open_at_end"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
}

// ReportMetadata describes the data a backtest ran over.
type ReportMetadata struct {
	RunID        string    `json:"run_id"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	Bars         int       `json:"bars"`
	PeriodDays   float64   `json:"period_days"`
	PeriodMonths float64   `json:"period_months"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Timestamp    time.Time `json:"timestamp"`
}

// Report is the persisted outcome of one backtest run.
type Report struct {
	Metadata   ReportMetadata         `json:"metadata"`
	Metrics    Metrics                `json:"metrics"`
	Statistics map[string]int         `json:"statistics"`
	Config     map[string]interface{} `json:"config"`
	Ledger     []LedgerEvent          `json:"ledger,omitempty"`
}

// AsMap flattens the statistics into the report's key space.
func (s Statistics) AsMap() map[string]int {
	out := make(map[string]int, len(s.Rejections)+1)
	for r, c := range s.Rejections {
		out[string(r)] = c
	}
	out["entries"] = s.Entries
	return out
}
