package indicators

import "ictbot/internal/domain/models"

// detectFVG marks three-bar imbalances at their completing bar i. A bearish gap
// wins when both patterns appear on the same bar.
func (e *Enriched) detectFVG() {
	bars := e.Bars
	for i := 2; i < len(bars); i++ {
		first, cur := bars[i-2], bars[i]
		switch {
		case cur.High < first.Low:
			e.FVGSide[i] = models.SideBear
			e.FVGTop[i], e.FVGBot[i] = first.Low, cur.High
		case cur.Low > first.High:
			e.FVGSide[i] = models.SideBull
			e.FVGTop[i], e.FVGBot[i] = cur.Low, first.High
		}
	}
}
