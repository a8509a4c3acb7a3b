package features

import "fmt"

// Schema identifies a feature layout. Models record the schema they were
// trained on and refuse vectors of any other schema.
type Schema struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Size    int    `json:"size"`
}

var (
	// SchemaLegacy is gap, range, volume, bias, kill zone.
	SchemaLegacy = Schema{Version: 1, Name: "legacy5", Size: 5}
	// SchemaICT12 extends the legacy layout with volatility, break and gap-position features.
	SchemaICT12 = Schema{Version: 2, Name: "ict12", Size: 12}
)

// SchemaByVersion resolves a persisted schema version.
func SchemaByVersion(v int) (Schema, error) {
	switch v {
	case SchemaLegacy.Version:
		return SchemaLegacy, nil
	case SchemaICT12.Version:
		return SchemaICT12, nil
	default:
		return Schema{}, fmt.Errorf("unknown feature schema version %d", v)
	}
}

func (s Schema) String() string { return fmt.Sprintf("%s/v%d", s.Name, s.Version) }

// Positions shared by every schema.
const (
	IdxGap = iota
	IdxRange
	IdxVolume
	IdxBias
	IdxKillZone
	IdxATRNorm
	IdxGapATR
	IdxBOSProximity
	IdxStructure
	IdxBOSStrength
	IdxGapPosition
	IdxMomentum
)

// Vector is one feature row tagged with its schema.
type Vector struct {
	Schema Schema    `json:"schema"`
	Values []float64 `json:"values"`
}

func (v Vector) Gap() float64      { return v.Values[IdxGap] }
func (v Vector) Range() float64    { return v.Values[IdxRange] }
func (v Vector) Bias() float64     { return v.Values[IdxBias] }
func (v Vector) KillZone() float64 { return v.Values[IdxKillZone] }

// Valid reports whether the values match the declared schema size.
func (v Vector) Valid() bool { return len(v.Values) == v.Schema.Size }
