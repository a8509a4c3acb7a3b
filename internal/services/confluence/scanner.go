// Package confluence finds fair value gaps that line up with a recent break of
// structure at a given bar.
package confluence

import (
	"ictbot/internal/domain/models"
	"ictbot/internal/services/indicators"
	"ictbot/pkg/config"
)

type Config struct {
	MaxLookback         int
	BOSMaxAge           int
	MaxFVGBOSDistance   int
	UseMitigationFilter bool
	UseStructureFilter  bool
}

func DefaultConfig() Config {
	return Config{
		MaxLookback:         60,
		BOSMaxAge:           20,
		MaxFVGBOSDistance:   20,
		UseMitigationFilter: true,
		UseStructureFilter:  true,
	}
}

func ConfigFromStrategy(s config.Strategy) Config {
	c := DefaultConfig()
	c.BOSMaxAge = s.BOSMaxAge
	c.MaxFVGBOSDistance = s.FVGBOSMaxDistance
	c.UseMitigationFilter = s.UseFVGMitigationFilter
	c.UseStructureFilter = s.UseMarketStructureFilter
	return c
}

// Result describes the gap that validated a setup at a scan index.
type Result struct {
	Side        models.Side
	Top         float64
	Bot         float64
	Mid         float64
	FVGIndex    int
	BOSIndex    int
	BOSDistance int
}

// Gap is the gap height.
func (r Result) Gap() float64 { return r.Top - r.Bot }

type Scanner struct {
	cfg Config
}

func NewScanner(cfg Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Bias is the directional bias at idx from the break of structure on that bar.
// A bar breaking both ways, or neither, is neutral.
func Bias(e *indicators.Enriched, idx int) models.Side {
	up, down := e.BOSUp[idx], e.BOSDown[idx]
	switch {
	case up && !down:
		return models.SideBull
	case down && !up:
		return models.SideBear
	default:
		return models.SideNone
	}
}

// Find scans gaps from idx-1 back to max(idx-MaxLookback, 2), most recent first,
// and returns the first one that contains the close at idx, is not yet mitigated,
// has a same-side break within BOSMaxAge bars of idx that sits no further than
// MaxFVGBOSDistance bars from the gap, and is not contradicted by structure.
func (s *Scanner) Find(e *indicators.Enriched, idx int) (Result, bool) {
	if idx < 0 || idx >= e.Len() {
		return Result{}, false
	}

	px := e.Bars[idx].Close
	bullBOS := s.nearestBOS(e.BOSUp, idx)
	bearBOS := s.nearestBOS(e.BOSDown, idx)

	start := idx - s.cfg.MaxLookback
	if start < 2 {
		start = 2
	}

	for j := idx - 1; j >= start; j-- {
		side := e.FVGSide[j]
		if side == models.SideNone {
			continue
		}
		if s.cfg.UseMitigationFilter && e.MitigatedBefore(j, idx) {
			continue
		}

		top, bot := e.FVGTop[j], e.FVGBot[j]
		if px < bot || px > top {
			continue
		}

		bos := bullBOS
		if side == models.SideBear {
			bos = bearBOS
		}
		if bos < 0 {
			continue
		}

		dist := abs(j - bos)
		if dist > s.cfg.MaxFVGBOSDistance {
			continue
		}
		if s.cfg.UseStructureFilter && e.Structure[idx].Contradicts(side) {
			continue
		}

		return Result{
			Side:        side,
			Top:         top,
			Bot:         bot,
			Mid:         (top + bot) / 2,
			FVGIndex:    j,
			BOSIndex:    bos,
			BOSDistance: dist,
		}, true
	}
	return Result{}, false
}

// nearestBOS returns the latest index in [idx-BOSMaxAge, idx] where flags is set, or -1.
func (s *Scanner) nearestBOS(flags []bool, idx int) int {
	stop := idx - s.cfg.BOSMaxAge
	if stop < 0 {
		stop = 0
	}
	for k := idx; k >= stop; k-- {
		if flags[k] {
			return k
		}
	}
	return -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
