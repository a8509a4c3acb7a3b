// Package mlfilter implements the meta-labelling probability gate: a class-balanced
// logistic regression refitted on a rolling window of trade outcomes.
package mlfilter

import (
	"errors"
	"fmt"
	"math"

	"ictbot/internal/services/features"
	"ictbot/pkg/config"
)

// ErrModelIncompatible is returned when a vector or snapshot does not match the
// schema the filter was built for.
var ErrModelIncompatible = errors.New("model incompatible with feature schema")

type Config struct {
	Schema     features.Schema
	MaxSamples int
	MinSamples int
	C          float64
	MaxIter    int
}

func DefaultConfig() Config {
	return Config{
		Schema:     features.SchemaICT12,
		MaxSamples: 500,
		MinSamples: 40,
		C:          1.0,
		MaxIter:    500,
	}
}

// ConfigFromStrategy takes the window sizes and feature schema from the
// strategy. An unknown schema version keeps the default schema.
func ConfigFromStrategy(s config.Strategy) Config {
	c := DefaultConfig()
	c.MaxSamples = s.MaxMLSamples
	c.MinSamples = s.MinMLSamples
	if schema, err := features.SchemaByVersion(s.FeatureSchema); err == nil {
		c.Schema = schema
	}
	return c
}

// Filter is not safe for concurrent use; each backtest or live loop owns one.
type Filter struct {
	cfg   Config
	x     [][]float64
	y     []float64
	model *Model
}

func New(cfg Config) *Filter {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultConfig().MaxSamples
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.C <= 0 {
		cfg.C = 1
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultConfig().MaxIter
	}
	return &Filter{cfg: cfg}
}

func (f *Filter) Schema() features.Schema { return f.cfg.Schema }

func (f *Filter) Samples() int { return len(f.y) }

// Trained reports whether predictions come from a fitted model.
func (f *Filter) Trained() bool {
	return f.model != nil && len(f.y) >= f.cfg.MinSamples
}

func (f *Filter) check(v features.Vector) error {
	if v.Schema != f.cfg.Schema || !v.Valid() {
		return fmt.Errorf("%w: filter expects %s with %d values, got %s with %d",
			ErrModelIncompatible, f.cfg.Schema, f.cfg.Schema.Size, v.Schema, len(v.Values))
	}
	return nil
}

// Predict returns the probability that a setup reaches its target.
func (f *Filter) Predict(v features.Vector) (float64, error) {
	if err := f.check(v); err != nil {
		return 0, err
	}
	if !f.Trained() {
		return ColdProbability(v), nil
	}
	return f.model.Prob(v.Values), nil
}

// ColdProbability is the heuristic used before enough outcomes are known:
// 0.5 + 0.2*gap/range + 0.05*killzone + 0.05*[bias != 0], clamped to [0, 0.95].
func ColdProbability(v features.Vector) float64 {
	rng := v.Range()
	if rng <= 0 {
		return 0.5
	}
	p := 0.50 + 0.20*(v.Gap()/rng) + 0.05*v.KillZone()
	if v.Bias() != 0 {
		p += 0.05
	}
	return math.Max(0, math.Min(0.95, p))
}

// Observe records a closed trade (won = target hit) and refits on the whole
// window once it holds at least MinSamples outcomes.
func (f *Filter) Observe(v features.Vector, won bool) error {
	if err := f.check(v); err != nil {
		return err
	}

	label := 0.0
	if won {
		label = 1
	}
	f.x = append(f.x, append([]float64(nil), v.Values...))
	f.y = append(f.y, label)
	f.evict()

	if len(f.y) < f.cfg.MinSamples {
		return nil
	}
	return f.refit()
}

// evict drops the oldest samples beyond MaxSamples and reports whether any went.
func (f *Filter) evict() bool {
	over := len(f.y) - f.cfg.MaxSamples
	if over <= 0 {
		return false
	}
	f.x = append([][]float64(nil), f.x[over:]...)
	f.y = append([]float64(nil), f.y[over:]...)
	return true
}

func (f *Filter) refit() error {
	w, err := balancedWeights(f.y)
	if errors.Is(err, errSingleClass) {
		// keep the previous model; one-sided windows carry no decision boundary
		return nil
	}
	if err != nil {
		return err
	}

	m, err := fitLogistic(f.x, f.y, w, f.cfg.C, f.cfg.MaxIter)
	if err != nil {
		return fmt.Errorf("fit meta-labelling model: %w", err)
	}
	f.model = m
	return nil
}

// Window returns copies of the buffered samples, oldest first.
func (f *Filter) Window() ([][]float64, []float64) {
	x := make([][]float64, len(f.x))
	for i, row := range f.x {
		x[i] = append([]float64(nil), row...)
	}
	return x, append([]float64(nil), f.y...)
}
