package models

import "time"

// Signal is a live trade candidate produced for the newest closed bar.
type Signal struct {
	Symbol      string       `json:"symbol"`
	Timeframe   string       `json:"timeframe"`
	Time        time.Time    `json:"time"`
	Accepted    bool         `json:"accepted"`
	Reason      RejectReason `json:"reason,omitempty"`
	Side        Side         `json:"side"`
	Entry       float64      `json:"entry"`
	SL          float64      `json:"sl"`
	TP          float64      `json:"tp"`
	RR          float64      `json:"rr"`
	Prob        float64      `json:"prob"`
	FVGTop      float64      `json:"fvg_top,omitempty"`
	FVGBot      float64      `json:"fvg_bot,omitempty"`
	BOSDistance int          `json:"bos_distance,omitempty"`
}

// OrderRequest is a market order sent to the execution gateway.
type OrderRequest struct {
	Symbol  string  `json:"symbol"`
	Side    Side    `json:"side"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Magic   int     `json:"magic"`
	Comment string  `json:"comment"`
}

// OrderResult is the gateway's answer to an order.
type OrderResult struct {
	Ticket  int64   `json:"ticket"`
	Retcode int     `json:"retcode"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Comment string  `json:"comment"`
}

// Account is the trading account snapshot used for sizing.
type Account struct {
	Login    int64   `json:"login"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency"`
}

// OpenPosition is a position reported by the gateway.
type OpenPosition struct {
	Ticket int64   `json:"ticket"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Volume float64 `json:"volume"`
	Entry  float64 `json:"entry"`
	SL     float64 `json:"sl"`
	TP     float64 `json:"tp"`
	Magic  int     `json:"magic"`
}
