package indicators

import (
	"math"

	"ictbot/internal/domain/models"
)

// TrueRange returns the per-bar true range; the first bar uses high-low.
func TrueRange(bars []models.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return tr
}

// WilderATR seeds atr[period-1] with the mean true range of the first period
// bars and smooths recursively afterwards. Earlier entries stay zero.
func WilderATR(bars []models.Bar, period int) []float64 {
	n := len(bars)
	atr := make([]float64, n)
	if period <= 0 || n < period {
		return atr
	}

	tr := TrueRange(bars)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr[period-1] = sum / float64(period)

	p := float64(period)
	for i := period; i < n; i++ {
		atr[i] = (atr[i-1]*(p-1) + tr[i]) / p
	}
	return atr
}
