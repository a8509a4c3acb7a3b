package models

import "time"

// GridParams is one combination of the grid-search parameter space.
type GridParams struct {
	RiskPerTrade        float64 `json:"RISK_PER_TRADE"`
	RRTakeProfit        float64 `json:"RR_TAKE_PROFIT"`
	MaxConcurrentTrades int     `json:"MAX_CONCURRENT_TRADES"`
	CooldownBars        int     `json:"COOLDOWN_BARS"`
	MLThreshold         float64 `json:"ML_THRESHOLD"`
	UseATRFilter        bool    `json:"USE_ATR_FILTER"`
	UseCircuitBreaker   bool    `json:"USE_CIRCUIT_BREAKER"`
}

// GridResult is the outcome of one combination.
type GridResult struct {
	ID        int        `json:"id"`
	Params    GridParams `json:"params"`
	Metrics   Metrics    `json:"metrics"`
	PnLPct    float64    `json:"pnl_pct"`
	Sharpe    float64    `json:"sharpe"`
	Composite float64    `json:"composite_score"`
	Err       string     `json:"error,omitempty"`
}

// GridJobStatus tracks an asynchronous grid-search job.
type GridJobStatus string

const (
	GridJobQueued  GridJobStatus = "queued"
	GridJobRunning GridJobStatus = "running"
	GridJobDone    GridJobStatus = "done"
	GridJobFailed  GridJobStatus = "failed"
)

// GridJob is the persisted state of a grid-search job.
type GridJob struct {
	ID        string        `json:"id"`
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Bars      int           `json:"bars"`
	Status    GridJobStatus `json:"status"`
	Combos    int           `json:"combinations"`
	Done      int           `json:"done"`
	Results   []GridResult  `json:"results,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
