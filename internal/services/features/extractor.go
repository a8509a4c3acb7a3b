package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"ictbot/internal/domain/models"
	"ictbot/internal/services/confluence"
	"ictbot/internal/services/indicators"
)

const (
	windowBars     = 50
	minWindowBars  = 10
	momentumBars   = 5
	degenerateSpan = 1e-6
)

type Extractor struct {
	schema Schema
}

func NewExtractor(schema Schema) *Extractor {
	return &Extractor{schema: schema}
}

func (x *Extractor) Schema() Schema { return x.schema }

// Extract builds the feature row for a setup at idx. Only bars up to idx are read;
// the range and volume window covers the 50 bars before idx.
func (x *Extractor) Extract(e *indicators.Enriched, idx int, r confluence.Result, killZone bool) Vector {
	bars := e.Bars
	px := bars[idx].Close
	gap := math.Abs(r.Top - r.Bot)

	from := idx - windowBars
	if from < 0 {
		from = 0
	}
	window := bars[from:idx]

	rng, vol := degenerateSpan, 0.0
	if len(window) >= minWindowBars {
		hi, lo := window[0].High, window[0].Low
		volumes := make([]float64, len(window))
		for k, b := range window {
			hi = math.Max(hi, b.High)
			lo = math.Min(lo, b.Low)
			volumes[k] = b.TickVolume
		}
		rng = hi - lo
		vol = stat.Mean(volumes, nil)
	}

	bias := confluence.Bias(e, idx).Sign()
	kz := 0.0
	if killZone {
		kz = 1
	}

	values := []float64{gap, rng, vol, bias, kz}
	if x.schema.Size == SchemaLegacy.Size {
		return Vector{Schema: x.schema, Values: values}
	}

	atr := e.ATR[idx]
	values = append(values,
		safeDiv(atr, px),
		safeDiv(gap, atr),
		1/float64(r.BOSDistance+1),
		alignedStructure(e, idx, bias),
		safeDiv(e.BOSStrength[idx], atr),
		gapPosition(px, r.Bot, gap),
		momentum(bars, idx),
	)
	return Vector{Schema: x.schema, Values: values}
}

// alignedStructure is the structure score when the regime agrees with the bias, else 0.
func alignedStructure(e *indicators.Enriched, idx int, bias float64) float64 {
	s := e.Structure[idx]
	if (bias > 0 && s == models.StructureBullish) || (bias < 0 && s == models.StructureBearish) {
		return e.StructureScore[idx]
	}
	return 0
}

// gapPosition is 0 at the gap bottom and 1 at its top.
func gapPosition(px, bot, gap float64) float64 {
	if gap == 0 {
		return 0.5
	}
	return (px - bot) / gap
}

func momentum(bars []models.Bar, idx int) float64 {
	if idx < momentumBars {
		return 0
	}
	ref := bars[idx-momentumBars].Close
	return safeDiv(bars[idx].Close-ref, ref)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
