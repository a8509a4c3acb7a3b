package indicators

import "ictbot/internal/domain/models"

// Enriched carries per-bar annotations parallel to Bars. Every value at index i
// is derived from bars[0..i] only; appending bars never changes earlier entries.
type Enriched struct {
	Bars []models.Bar
	cfg  Config

	// Swings are recorded on the bar that confirms them (pivot + SwingRight).
	SwingHigh      []bool
	SwingHighPrice []float64
	SwingHighPivot []int
	SwingLow       []bool
	SwingLowPrice  []float64
	SwingLowPivot  []int

	BOSUp       []bool
	BOSDown     []bool
	BOSStrength []float64 // penetration beyond the broken swing, in price
	BOSAge      []int     // bars between the broken pivot and the break; -1 without a break

	FVGSide []models.Side
	FVGTop  []float64
	FVGBot  []float64

	OBSide []models.Side
	OBLow  []float64
	OBHigh []float64

	ATR []float64

	Structure      []models.Structure
	StructureScore []float64
}

// Enrich computes every annotation over bars. It never mutates bars and is
// total: sequences shorter than a lookback carry neutral annotations there.
func Enrich(bars []models.Bar, cfg Config) *Enriched {
	n := len(bars)
	e := &Enriched{
		Bars:           bars,
		cfg:            cfg,
		SwingHigh:      make([]bool, n),
		SwingHighPrice: make([]float64, n),
		SwingHighPivot: filledInts(n, -1),
		SwingLow:       make([]bool, n),
		SwingLowPrice:  make([]float64, n),
		SwingLowPivot:  filledInts(n, -1),
		BOSUp:          make([]bool, n),
		BOSDown:        make([]bool, n),
		BOSStrength:    make([]float64, n),
		BOSAge:         filledInts(n, -1),
		FVGSide:        make([]models.Side, n),
		FVGTop:         make([]float64, n),
		FVGBot:         make([]float64, n),
		OBSide:         make([]models.Side, n),
		OBLow:          make([]float64, n),
		OBHigh:         make([]float64, n),
		Structure:      make([]models.Structure, n),
		StructureScore: make([]float64, n),
	}

	e.detectSwings()
	e.detectBOS()
	e.detectFVG()
	e.detectOrderBlocks()
	e.ATR = WilderATR(bars, cfg.ATRPeriod)
	e.classifyStructure()

	return e
}

func (e *Enriched) Len() int { return len(e.Bars) }

func (e *Enriched) Config() Config { return e.cfg }

// FVGMid returns the midpoint of the gap recorded at j.
func (e *Enriched) FVGMid(j int) float64 {
	return (e.FVGTop[j] + e.FVGBot[j]) / 2
}

// MitigatedBefore reports whether the gap at j was mitigated by a close strictly
// before idx: some close in (j, min(idx, j+horizon)) beyond the gap midpoint,
// below it for a bullish gap and above it for a bearish one.
func (e *Enriched) MitigatedBefore(j, idx int) bool {
	if j < 0 || j >= len(e.Bars) || e.FVGSide[j] == models.SideNone {
		return false
	}
	end := j + e.cfg.MitigationHorizon
	if idx < end {
		end = idx
	}
	if end > len(e.Bars) {
		end = len(e.Bars)
	}

	mid := e.FVGMid(j)
	for k := j + 1; k < end; k++ {
		c := e.Bars[k].Close
		if e.FVGSide[j] == models.SideBull && c < mid {
			return true
		}
		if e.FVGSide[j] == models.SideBear && c > mid {
			return true
		}
	}
	return false
}

func filledInts(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
