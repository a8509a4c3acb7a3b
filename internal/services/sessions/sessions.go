// Package sessions maps bar timestamps onto trading sessions in a reference timezone.
package sessions

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"ictbot/pkg/config"
)

type Session int

const (
	SessionNone Session = iota
	SessionLondon
	SessionNewYork
)

func (s Session) String() string {
	switch s {
	case SessionLondon:
		return "london"
	case SessionNewYork:
		return "newyork"
	default:
		return "none"
	}
}

// Window is a half-open hour range [Start, End) in local time.
type Window struct {
	Start int
	End   int
}

func (w Window) contains(hour int) bool { return hour >= w.Start && hour < w.End }

type Config struct {
	Location   *time.Location
	London     Window
	NewYork    Window
	AdaptiveRR bool
	RRLondon   float64
	RRNewYork  float64
	RRDefault  float64
	FixedRR    float64
}

// Calendar answers kill-zone and session questions for one configuration.
type Calendar struct {
	cfg Config
}

func New(cfg Config) *Calendar {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Calendar{cfg: cfg}
}

// FromStrategy builds a calendar from the strategy document.
func FromStrategy(s config.Strategy) (*Calendar, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return New(Config{
		Location:   loc,
		London:     Window{Start: s.KZLondonStart, End: s.KZLondonEnd},
		NewYork:    Window{Start: s.KZNewYorkStart, End: s.KZNewYorkEnd},
		AdaptiveRR: s.UseSessionAdaptiveRR,
		RRLondon:   s.RRLondon,
		RRNewYork:  s.RRNewYork,
		RRDefault:  s.RRDefault,
		FixedRR:    s.RRTakeProfit,
	}), nil
}

func (c *Calendar) Location() *time.Location { return c.cfg.Location }

// SessionAt returns the session containing t, London first when windows overlap.
func (c *Calendar) SessionAt(t time.Time) Session {
	h := t.In(c.cfg.Location).Hour()
	switch {
	case c.cfg.London.contains(h):
		return SessionLondon
	case c.cfg.NewYork.contains(h):
		return SessionNewYork
	default:
		return SessionNone
	}
}

func (c *Calendar) InKillZone(t time.Time) bool {
	return c.SessionAt(t) != SessionNone
}

// RR is the reward multiple for an entry at t. Without session-adaptive RR it is
// the fixed take-profit multiple.
func (c *Calendar) RR(t time.Time) float64 {
	if !c.cfg.AdaptiveRR {
		return c.cfg.FixedRR
	}
	switch c.SessionAt(t) {
	case SessionLondon:
		return c.cfg.RRLondon
	case SessionNewYork:
		return c.cfg.RRNewYork
	default:
		return c.cfg.RRDefault
	}
}

// Day returns the calendar day of t in the reference timezone as yyyymmdd.
func (c *Calendar) Day(t time.Time) int {
	y, m, d := t.In(c.cfg.Location).Date()
	return y*10000 + int(m)*100 + d
}
