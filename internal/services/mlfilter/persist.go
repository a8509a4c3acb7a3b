package mlfilter

import (
	"encoding/json"
	"fmt"
	"time"

	"ictbot/internal/services/features"
)

// State is the serialisable form of a filter.
type State struct {
	SchemaVersion int         `json:"schema_version"`
	FeatureCount  int         `json:"feature_count"`
	Weights       []float64   `json:"weights,omitempty"`
	Intercept     float64     `json:"intercept"`
	X             [][]float64 `json:"X"`
	Y             []float64   `json:"y"`
	Trained       bool        `json:"trained"`
	Samples       int         `json:"samples"`
	SavedAt       time.Time   `json:"saved_at"`
}

func (f *Filter) Snapshot() State {
	x, y := f.Window()
	s := State{
		SchemaVersion: f.cfg.Schema.Version,
		FeatureCount:  f.cfg.Schema.Size,
		X:             x,
		Y:             y,
		Trained:       f.Trained(),
		Samples:       len(y),
		SavedAt:       time.Now().UTC(),
	}
	if f.model != nil {
		s.Weights = append([]float64(nil), f.model.Weights...)
		s.Intercept = f.model.Intercept
	}
	return s
}

// Restore replaces the filter's window and model. A snapshot taken under another
// schema, or whose rows disagree with it, is rejected with ErrModelIncompatible.
func (f *Filter) Restore(s State) error {
	want := f.cfg.Schema
	got, err := features.SchemaByVersion(s.SchemaVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelIncompatible, err)
	}
	if got != want || s.FeatureCount != got.Size {
		return fmt.Errorf("%w: snapshot is %s with %d features, filter expects %s with %d",
			ErrModelIncompatible, got, s.FeatureCount, want, want.Size)
	}
	if len(s.X) != len(s.Y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrModelIncompatible, len(s.X), len(s.Y))
	}
	for i, row := range s.X {
		if len(row) != want.Size {
			return fmt.Errorf("%w: row %d has %d features", ErrModelIncompatible, i, len(row))
		}
	}
	if len(s.Weights) > 0 && len(s.Weights) != want.Size {
		return fmt.Errorf("%w: %d weights", ErrModelIncompatible, len(s.Weights))
	}

	f.x = make([][]float64, len(s.X))
	for i, row := range s.X {
		f.x[i] = append([]float64(nil), row...)
	}
	f.y = append([]float64(nil), s.Y...)
	f.model = nil
	if len(s.Weights) > 0 {
		f.model = &Model{Weights: append([]float64(nil), s.Weights...), Intercept: s.Intercept}
	}
	if f.evict() && len(f.y) >= f.cfg.MinSamples {
		// the stored weights were fitted on rows that no longer fit the window
		if err := f.refit(); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Snapshot())
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode filter state: %w", err)
	}
	return f.Restore(s)
}
