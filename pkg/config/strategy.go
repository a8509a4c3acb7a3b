package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrStrategyNotFound is returned when a named strategy document does not exist.
var ErrStrategyNotFound = errors.New("strategy config not found")

// Strategy is the immutable parameter set of one backtest or live session.
// Keys mirror the flat JSON documents under the strategy config directory;
// missing keys take the defaults below and unknown keys are ignored.
type Strategy struct {
	RiskPerTrade        float64 `json:"RISK_PER_TRADE" default:"0.01" validate:"gt=0,lte=0.1"`
	RRTakeProfit        float64 `json:"RR_TAKE_PROFIT" default:"1.8" validate:"gt=0"`
	MaxConcurrentTrades int     `json:"MAX_CONCURRENT_TRADES" default:"2" validate:"gte=1"`
	CooldownBars        int     `json:"COOLDOWN_BARS" default:"5" validate:"gte=0"`
	MLThreshold         float64 `json:"ML_THRESHOLD" default:"0.40" validate:"gte=0,lte=1"`

	UseSessionAdaptiveRR bool    `json:"USE_SESSION_ADAPTIVE_RR" default:"true"`
	RRLondon             float64 `json:"RR_LONDON" default:"1.2" validate:"gt=0"`
	RRNewYork            float64 `json:"RR_NEWYORK" default:"1.5" validate:"gt=0"`
	RRDefault            float64 `json:"RR_DEFAULT" default:"1.3" validate:"gt=0"`

	UseMLMetaLabelling bool `json:"USE_ML_META_LABELLING" default:"true"`
	MaxMLSamples       int  `json:"MAX_ML_SAMPLES" default:"500" validate:"gte=40"`
	MinMLSamples       int  `json:"MIN_ML_SAMPLES" default:"40" validate:"gte=2,ltefield=MaxMLSamples"`
	FeatureSchema      int  `json:"FEATURE_SCHEMA" default:"2" validate:"oneof=1 2"` // 1 legacy five features, 2 ICT twelve

	UseKillZones   bool   `json:"USE_KILLZONES" default:"true"`
	Timezone       string `json:"TIMEZONE" default:"Europe/Paris" validate:"required"`
	KZLondonStart  int    `json:"KZ_LONDON_START" default:"8" validate:"gte=0,lte=23"`
	KZLondonEnd    int    `json:"KZ_LONDON_END" default:"11" validate:"gte=1,lte=24,gtfield=KZLondonStart"`
	KZNewYorkStart int    `json:"KZ_NEWYORK_START" default:"14" validate:"gte=0,lte=23"`
	KZNewYorkEnd   int    `json:"KZ_NEWYORK_END" default:"17" validate:"gte=1,lte=24,gtfield=KZNewYorkStart"`

	UseATRFilter        bool    `json:"USE_ATR_FILTER" default:"true"`
	ATRFVGMinRatio      float64 `json:"ATR_FVG_MIN_RATIO" default:"0.2" validate:"gte=0"`
	ATRFVGMaxRatio      float64 `json:"ATR_FVG_MAX_RATIO" default:"2.5" validate:"gtfield=ATRFVGMinRatio"`
	UseCircuitBreaker   bool    `json:"USE_CIRCUIT_BREAKER" default:"true"`
	DailyDDLimit        float64 `json:"DAILY_DD_LIMIT" default:"0.03" validate:"gt=0,lt=1"`
	UseAdaptiveRisk     bool    `json:"USE_ADAPTIVE_RISK" default:"true"`
	RiskReductionFactor float64 `json:"RISK_REDUCTION_FACTOR" default:"0.5" validate:"gt=0,lte=1"`

	UseFVGMitigationFilter   bool `json:"USE_FVG_MITIGATION_FILTER" default:"true"`
	UseBOSRecencyFilter      bool `json:"USE_BOS_RECENCY_FILTER" default:"true"`
	UseMarketStructureFilter bool `json:"USE_MARKET_STRUCTURE_FILTER" default:"true"`
	BOSMaxAge                int  `json:"BOS_MAX_AGE" default:"20" validate:"gte=1"`
	FVGBOSMaxDistance        int  `json:"FVG_BOS_MAX_DISTANCE" default:"20" validate:"gte=0"`
	UseOrderBlockSL          bool `json:"USE_ORDER_BLOCK_SL" default:"true"`

	UseExtremeVolatilityFilter bool    `json:"USE_EXTREME_VOLATILITY_FILTER" default:"true"`
	VolatilityMultiplierMax    float64 `json:"VOLATILITY_MULTIPLIER_MAX" default:"3.0" validate:"gt=0"`

	InitialEquity float64 `json:"INITIAL_EQUITY" default:"10000" validate:"gt=0"`
	WarmupBars    int     `json:"WARMUP_BARS" default:"50" validate:"gte=3"`
	MagicNumber   int     `json:"MAGIC_NUMBER" default:"161803"`
	Comment       string  `json:"COMMENT" default:"ICTv1"`
}

var validate = validator.New()

// DefaultStrategy returns the built-in parameter set.
func DefaultStrategy() Strategy {
	var s Strategy
	_ = defaults.Set(&s)
	return s
}

// ParseStrategy layers a JSON document over the defaults and validates the result.
func ParseStrategy(data []byte) (Strategy, error) {
	s := DefaultStrategy()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &s); err != nil {
			return Strategy{}, fmt.Errorf("parse strategy: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

// LoadStrategy reads <dir>/<name>.json. The name "default" with no file on disk
// yields the built-in defaults.
func LoadStrategy(dir, name string) (Strategy, error) {
	if name == "" {
		name = "default"
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Strategy{}, fmt.Errorf("invalid strategy name %q", name)
	}

	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if name == "default" {
				return DefaultStrategy(), nil
			}
			return Strategy{}, fmt.Errorf("%w: %s", ErrStrategyNotFound, path)
		}
		return Strategy{}, fmt.Errorf("read strategy: %w", err)
	}
	return ParseStrategy(data)
}

// Validate checks field ranges.
func (s Strategy) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validate strategy: %w", err)
	}
	return nil
}

// AsMap renders the strategy with its JSON keys, for reports.
func (s Strategy) AsMap() map[string]interface{} {
	b, _ := json.Marshal(s)
	out := make(map[string]interface{})
	_ = json.Unmarshal(b, &out)
	return out
}

// WithoutML returns a copy with the probability filter disabled.
func (s Strategy) WithoutML() Strategy {
	s.UseMLMetaLabelling = false
	return s
}
