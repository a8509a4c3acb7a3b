package testutil

import (
	"time"

	"ictbot/internal/domain/models"
)

const pip = 0.0001

// motif in pips relative to the price before it: a swing high at +2 (20),
// a swing low at +4 (2), a rally leaving a bullish gap [24, 34] on +8 and a
// pullback bar on +9 closing at 31, inside the gap and above the swing high.
var motif = [][4]float64{
	{0, 7, -1, 5},
	{5, 12, 4, 10},
	{10, 20, 9, 14},
	{14, 15, 6, 8},
	{8, 9, 2, 4},
	{4, 14, 3, 12},
	{12, 24, 11, 22},
	{22, 38, 21, 36},
	{36, 46, 34, 44},
	{44, 45, 30, 31},
}

// MotifEntryOffset is the bar within a motif where a long setup is valid.
const MotifEntryOffset = 9

// SeriesBuilder appends synthetic M15 bars.
type SeriesBuilder struct {
	Bars  []models.Bar
	price float64
}

func NewSeriesBuilder(price float64) *SeriesBuilder {
	return &SeriesBuilder{price: price}
}

// Drift appends n bars rising half a pip each with a six and a half pip range.
// Highs and lows rise monotonically, so drift forms no swings and no gaps.
func (s *SeriesBuilder) Drift(n int) *SeriesBuilder {
	for k := 0; k < n; k++ {
		o := s.price
		c := o + 0.5*pip
		s.Bars = append(s.Bars, OHLC(len(s.Bars), 15*time.Minute, o, c+3*pip, o-3*pip, c))
		s.price = c
	}
	return s
}

// Motif appends the ten-bar bullish gap and break pattern.
func (s *SeriesBuilder) Motif() *SeriesBuilder {
	base := s.price
	for _, row := range motif {
		s.Bars = append(s.Bars, OHLC(len(s.Bars), 15*time.Minute,
			base+row[0]*pip, base+row[1]*pip, base+row[2]*pip, base+row[3]*pip))
	}
	s.price = base + motif[len(motif)-1][3]*pip
	return s
}

// BullishScenario is 200 bars with motifs starting at 60, 110 and 160, so long
// setups appear at 69, 119 and 169.
func BullishScenario() []models.Bar {
	return NewSeriesBuilder(1.1000).
		Drift(60).Motif().
		Drift(40).Motif().
		Drift(40).Motif().
		Drift(30).
		Bars
}
