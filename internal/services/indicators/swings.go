package indicators

import "ictbot/internal/domain/models"

// detectSwings marks fractal pivots. A pivot p is a swing high when high[p] is the
// maximum of [p-left, p+right] and no other bar in that window reaches it.
func (e *Enriched) detectSwings() {
	left, right := e.cfg.SwingLeft, e.cfg.SwingRight
	bars := e.Bars

	for p := left; p+right < len(bars); p++ {
		confirm := p + right
		if uniqueExtreme(bars, p, left, right, func(b models.Bar) float64 { return b.High }, true) {
			e.SwingHigh[confirm] = true
			e.SwingHighPrice[confirm] = bars[p].High
			e.SwingHighPivot[confirm] = p
		}
		if uniqueExtreme(bars, p, left, right, func(b models.Bar) float64 { return b.Low }, false) {
			e.SwingLow[confirm] = true
			e.SwingLowPrice[confirm] = bars[p].Low
			e.SwingLowPivot[confirm] = p
		}
	}
}

func uniqueExtreme(bars []models.Bar, p, left, right int, value func(models.Bar) float64, high bool) bool {
	v := value(bars[p])
	for k := p - left; k <= p+right; k++ {
		if k == p {
			continue
		}
		w := value(bars[k])
		if high && w >= v {
			return false
		}
		if !high && w <= v {
			return false
		}
	}
	return true
}

// detectBOS flags closes beyond the most recent confirmed swing. With recency
// enabled the broken pivot must be at most BOSMaxAge bars old.
func (e *Enriched) detectBOS() {
	lastHigh, lastHighPivot := 0.0, -1
	lastLow, lastLowPivot := 0.0, -1

	for i, b := range e.Bars {
		if e.SwingHigh[i] {
			lastHigh, lastHighPivot = e.SwingHighPrice[i], e.SwingHighPivot[i]
		}
		if e.SwingLow[i] {
			lastLow, lastLowPivot = e.SwingLowPrice[i], e.SwingLowPivot[i]
		}

		if lastHighPivot >= 0 && b.Close > lastHigh && e.recent(i, lastHighPivot) {
			e.BOSUp[i] = true
			e.BOSStrength[i] = b.Close - lastHigh
			e.BOSAge[i] = i - lastHighPivot
		}
		if lastLowPivot >= 0 && b.Close < lastLow && e.recent(i, lastLowPivot) {
			e.BOSDown[i] = true
			if !e.BOSUp[i] {
				e.BOSStrength[i] = lastLow - b.Close
				e.BOSAge[i] = i - lastLowPivot
			}
		}
	}
}

func (e *Enriched) recent(i, pivot int) bool {
	return !e.cfg.UseBOSRecency || i-pivot <= e.cfg.BOSMaxAge
}

// detectOrderBlocks records, on each BOS bar, the last opposite-colour candle
// within OBLookback bars: a down candle before a bullish break spans [low, open],
// an up candle before a bearish break spans [open, high].
func (e *Enriched) detectOrderBlocks() {
	bars := e.Bars
	for i := range bars {
		var want func(models.Bar) bool
		var side models.Side
		switch {
		case e.BOSUp[i]:
			want, side = models.Bar.Bearish, models.SideBull
		case e.BOSDown[i]:
			want, side = models.Bar.Bullish, models.SideBear
		default:
			continue
		}

		start := i - e.cfg.OBLookback
		if start < 0 {
			start = 0
		}
		for k := i - 1; k >= start; k-- {
			if !want(bars[k]) {
				continue
			}
			e.OBSide[i] = side
			if side == models.SideBull {
				e.OBLow[i], e.OBHigh[i] = bars[k].Low, bars[k].Open
			} else {
				e.OBLow[i], e.OBHigh[i] = bars[k].Open, bars[k].High
			}
			break
		}
	}
}
