package indicators

import "ictbot/pkg/config"

// Config holds the enrichment lookbacks. The zero value is not usable; start from DefaultConfig.
type Config struct {
	SwingLeft         int
	SwingRight        int
	BOSMaxAge         int
	UseBOSRecency     bool
	OBLookback        int
	ATRPeriod         int
	StructureLookback int
	StructureSwings   int
	MitigationHorizon int
}

func DefaultConfig() Config {
	return Config{
		SwingLeft:         2,
		SwingRight:        2,
		BOSMaxAge:         20,
		UseBOSRecency:     true,
		OBLookback:        12,
		ATRPeriod:         14,
		StructureLookback: 50,
		StructureSwings:   2,
		MitigationHorizon: 30,
	}
}

// ConfigFromStrategy maps the strategy document onto enrichment settings.
func ConfigFromStrategy(s config.Strategy) Config {
	c := DefaultConfig()
	c.BOSMaxAge = s.BOSMaxAge
	c.UseBOSRecency = s.UseBOSRecencyFilter
	return c
}
