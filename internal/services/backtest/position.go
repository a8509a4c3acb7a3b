package backtest

import (
	"time"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/features"
)

// Position is an open simulated trade.
type Position struct {
	Side       models.Side
	Entry      float64
	SL         float64
	TP         float64
	RR         float64
	Volume     float64
	Prob       float64
	EntryIndex int
	EntryTime  time.Time
	Features   features.Vector
}

// resolve checks bar against the position's levels. When both are touched in
// the same bar the stop wins.
func (p *Position) resolve(bar models.Bar) (models.LedgerKind, float64, bool) {
	var hitSL, hitTP bool
	if p.Side == models.SideBull {
		hitSL, hitTP = bar.Low <= p.SL, bar.High >= p.TP
	} else {
		hitSL, hitTP = bar.High >= p.SL, bar.Low <= p.TP
	}
	switch {
	case hitSL:
		return models.LedgerSL, p.SL, true
	case hitTP:
		return models.LedgerTP, p.TP, true
	default:
		return "", 0, false
	}
}

// pnl values a move from entry to exit in account currency.
func (p *Position) pnl(exit float64, info models.SymbolInfo) float64 {
	gain := (exit - p.Entry) * p.Side.Sign()
	return gain / info.Pip() * info.PipValuePerLot() * p.Volume
}
