// Package testutil builds deterministic bar series for tests.
package testutil

import (
	"math/rand"
	"time"

	"ictbot/internal/domain/models"
)

// Start is the timestamp of the first generated bar, a Monday at midnight UTC.
var Start = time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

// OHLC builds a bar stamped step*i after Start.
func OHLC(i int, step time.Duration, o, h, l, c float64) models.Bar {
	return models.Bar{
		Time:       Start.Add(time.Duration(i) * step),
		Open:       o,
		High:       h,
		Low:        l,
		Close:      c,
		TickVolume: 100,
		Spread:     1,
	}
}

// RandomWalk returns n M15 bars around 1.1000 driven by a seeded source.
func RandomWalk(seed int64, n int) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]models.Bar, n)
	price := 1.1000
	for i := range bars {
		open := price
		closePx := open + rng.NormFloat64()*0.0008
		high := max(open, closePx) + rng.Float64()*0.0005
		low := min(open, closePx) - rng.Float64()*0.0005
		bars[i] = OHLC(i, 15*time.Minute, open, high, low, closePx)
		bars[i].TickVolume = float64(50 + rng.Intn(200))
		price = closePx
	}
	return bars
}

// ZigZag returns a triangle wave with period 8 on top of a linear trend per bar.
// Highs and lows sit 0.1 away from the close; candles are coloured by direction.
func ZigZag(n int, trend float64) []models.Bar {
	bars := make([]models.Bar, n)
	prev := 10.0
	for i := range bars {
		phase := i % 8
		tri := phase
		if phase > 4 {
			tri = 8 - phase
		}
		c := 10 + trend*float64(i) + 0.5*float64(tri)
		o := c + 0.05
		if c > prev {
			o = c - 0.05
		}
		bars[i] = OHLC(i, 15*time.Minute, o, c+0.1, c-0.1, c)
		prev = c
	}
	return bars
}
