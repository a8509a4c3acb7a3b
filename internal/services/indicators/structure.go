package indicators

import "ictbot/internal/domain/models"

type swingPoint struct {
	pivot int
	price float64
}

// classifyStructure labels each bar from the last StructureSwings confirmed swing
// highs and lows whose pivots fall in [i-lookback, i). Higher highs and higher
// lows vote bullish, lower highs and lower lows vote bearish; a strict majority
// decides and the score is (bull-bear)/comparisons.
func (e *Enriched) classifyStructure() {
	lookback, want := e.cfg.StructureLookback, e.cfg.StructureSwings
	if want < 2 {
		want = 2
	}

	var highs, lows []swingPoint
	for i := range e.Bars {
		if e.SwingHigh[i] {
			highs = append(highs, swingPoint{e.SwingHighPivot[i], e.SwingHighPrice[i]})
		}
		if e.SwingLow[i] {
			lows = append(lows, swingPoint{e.SwingLowPivot[i], e.SwingLowPrice[i]})
		}
		if i < lookback {
			continue
		}

		h := lastInWindow(highs, i-lookback, i, want)
		l := lastInWindow(lows, i-lookback, i, want)
		if len(h) < 2 || len(l) < 2 {
			continue
		}

		bull, bear := 0, 0
		for k := 1; k < len(h); k++ {
			switch {
			case h[k].price > h[k-1].price:
				bull++
			case h[k].price < h[k-1].price:
				bear++
			}
		}
		for k := 1; k < len(l); k++ {
			switch {
			case l[k].price > l[k-1].price:
				bull++
			case l[k].price < l[k-1].price:
				bear++
			}
		}

		total := len(h) - 1 + len(l) - 1
		e.StructureScore[i] = float64(bull-bear) / float64(total)
		switch {
		case 2*bull > total:
			e.Structure[i] = models.StructureBullish
		case 2*bear > total:
			e.Structure[i] = models.StructureBearish
		}
	}
}

// lastInWindow returns up to n most recent points with pivot in [from, to), oldest first.
func lastInWindow(points []swingPoint, from, to, n int) []swingPoint {
	end := len(points)
	for end > 0 && points[end-1].pivot >= to {
		end--
	}
	start := end
	for start > 0 && end-start < n && points[start-1].pivot >= from {
		start--
	}
	return points[start:end]
}
