// Package execution converts risk budgets into order volumes.
package execution

import (
	"math"

	"ictbot/internal/domain/models"
)

// minStopPips is the stop distance below which sizing falls back to the minimum lot.
const minStopPips = 0.5

// RawVolume is balance*risk / (stop distance in pips * pip value per lot),
// without broker lot constraints. It returns 0 for non-positive stops.
func RawVolume(balance, risk, stopDistance float64, info models.SymbolInfo) float64 {
	pips := stopDistance / info.Pip()
	if pips <= 0 {
		return 0
	}
	return balance * risk / (pips * info.PipValuePerLot())
}

// Size returns a broker-valid volume: RawVolume clamped to [VolumeMin, VolumeMax]
// and rounded to VolumeStep. Stops tighter than half a pip get the minimum lot.
func Size(balance, risk, stopDistance float64, info models.SymbolInfo) float64 {
	vmin, vmax, step := info.VolumeMin, info.VolumeMax, info.VolumeStep
	if vmin <= 0 {
		vmin = 0.01
	}
	if vmax <= 0 {
		vmax = 100
	}
	if step <= 0 {
		step = 0.01
	}

	if stopDistance/info.Pip() < minStopPips {
		return vmin
	}

	vol := RawVolume(balance, risk, stopDistance, info)
	vol = math.Round(vol/step) * step
	vol = math.Max(vmin, math.Min(vmax, vol))

	// trim float noise from the step multiplication
	decimals := math.Max(0, math.Ceil(-math.Log10(step)))
	scale := math.Pow(10, decimals)
	return math.Round(vol*scale) / scale
}
