package models

import (
	"errors"
	"time"
)

// ErrDataUnavailable is returned when a feed or cache cannot supply the requested bars.
var ErrDataUnavailable = errors.New("market data unavailable")

// Bar is one OHLC candle. Bars are immutable once ingested and strictly time ordered.
type Bar struct {
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	TickVolume float64   `json:"tick_volume"`
	Spread     float64   `json:"spread"`
}

// Bullish reports whether the candle closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the candle closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// Side of a setup or position.
type Side int

const (
	SideNone Side = iota
	SideBull
	SideBear
)

func (s Side) String() string {
	switch s {
	case SideBull:
		return "buy"
	case SideBear:
		return "sell"
	default:
		return "none"
	}
}

// Sign is +1 for bull, -1 for bear, 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideBull:
		return 1
	case SideBear:
		return -1
	default:
		return 0
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy", "bull":
		*s = SideBull
	case "sell", "bear":
		*s = SideBear
	default:
		*s = SideNone
	}
	return nil
}

// Structure is the market-structure regime derived from recent swings.
type Structure int

const (
	StructureRanging Structure = iota
	StructureBullish
	StructureBearish
)

func (s Structure) String() string {
	switch s {
	case StructureBullish:
		return "bullish"
	case StructureBearish:
		return "bearish"
	default:
		return "ranging"
	}
}

// Contradicts reports whether the regime opposes a setup on side.
func (s Structure) Contradicts(side Side) bool {
	return (s == StructureBullish && side == SideBear) ||
		(s == StructureBearish && side == SideBull)
}

const (
	defaultPip         = 0.0001
	defaultPipValueLot = 10.0
)

// SymbolInfo describes instrument contract details needed for pip math and sizing.
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	PipSize      float64 `json:"pip_size,omitempty"`
	TickSize     float64 `json:"tick_size"`
	TickValue    float64 `json:"tick_value"`
	ContractSize float64 `json:"contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
}

// Pip returns the pip size: explicit PipSize, else ten points, else 0.0001.
func (s SymbolInfo) Pip() float64 {
	switch {
	case s.PipSize > 0:
		return s.PipSize
	case s.Point > 0:
		return s.Point * 10
	default:
		return defaultPip
	}
}

// PipValuePerLot is the account-currency value of one pip on one lot.
func (s SymbolInfo) PipValuePerLot() float64 {
	if s.TickSize > 0 && s.TickValue > 0 {
		return s.Pip() / s.TickSize * s.TickValue
	}
	return defaultPipValueLot
}

// DefaultSymbolInfo is a five-digit FX major used when the broker supplies nothing.
func DefaultSymbolInfo(symbol string) SymbolInfo {
	return SymbolInfo{
		Symbol:       symbol,
		Digits:       5,
		Point:        0.00001,
		TickSize:     0.00001,
		TickValue:    1,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
	}
}
