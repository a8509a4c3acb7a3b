package backtest

import "ictbot/internal/domain/models"

// summarize derives run metrics from the ledger. Only TP and SL rows count
// towards trades, win rate and drawdown.
func summarize(initial float64, ledger []models.LedgerEvent) models.Metrics {
	m := models.Metrics{FinalEquity: initial}

	peak := initial
	equity := initial
	for _, ev := range ledger {
		switch ev.Kind {
		case models.LedgerTP:
			m.Wins++
		case models.LedgerSL:
			m.Losses++
		case models.LedgerClose:
			m.OpenAtEnd++
			m.UnrealizedPnL += ev.PnL
			continue
		default:
			continue
		}

		equity = ev.Equity
		if equity > peak {
			peak = equity
		}
		if dd := (equity - peak) / peak * 100; dd < m.MaxDrawdownPct {
			m.MaxDrawdownPct = dd
		}
	}

	m.Trades = m.Wins + m.Losses
	if m.Trades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.Trades) * 100
	}
	m.FinalEquity = equity
	m.PnL = equity - initial
	return m
}
