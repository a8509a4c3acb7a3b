package repository

import (
	"strings"
	"time"
)

// Timeframe is a bar period in broker notation.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TFM1:  time.Minute,
	TFM5:  5 * time.Minute,
	TFM15: 15 * time.Minute,
	TFM30: 30 * time.Minute,
	TFH1:  time.Hour,
	TFH4:  4 * time.Hour,
	TFD1:  24 * time.Hour,
}

// defaultBars is the history loaded for a backtest when no count is given.
var defaultBars = map[Timeframe]int{
	TFM1:  43200,
	TFM5:  100000,
	TFM15: 2880,
	TFM30: 1440,
	TFH1:  720,
	TFH4:  1080,
	TFD1:  180,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFM15 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(strings.ToUpper(s))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bar period, or zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }

// DefaultBars returns the default history length for tf.
func (tf Timeframe) DefaultBars() int {
	if n, ok := defaultBars[tf]; ok {
		return n
	}
	return 100000
}
