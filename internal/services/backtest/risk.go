package backtest

// riskThrottle halves exposure after two consecutive losses and relaxes it
// one factor at a time on wins, never above nominal.
type riskThrottle struct {
	enabled bool
	nominal float64
	current float64
	factor  float64
	last    []bool
}

func newRiskThrottle(enabled bool, nominal, factor float64) *riskThrottle {
	return &riskThrottle{enabled: enabled, nominal: nominal, current: nominal, factor: factor}
}

func (r *riskThrottle) Risk() float64 { return r.current }

func (r *riskThrottle) record(won bool) {
	if !r.enabled {
		return
	}
	r.last = append(r.last, won)
	if len(r.last) > 2 {
		r.last = r.last[1:]
	}

	switch {
	case len(r.last) == 2 && !r.last[0] && !r.last[1]:
		r.current *= r.factor
	case won && r.current < 0.9*r.nominal:
		r.current = min(r.nominal, r.current/r.factor)
	}
}

// circuitBreaker trips once the day's realized drawdown passes the limit and
// stays tripped until the next calendar day.
type circuitBreaker struct {
	enabled bool
	limit   float64
	day     int
	anchor  float64
	tripped bool
}

func (b *circuitBreaker) roll(day int, equity float64) {
	if day != b.day {
		b.day, b.anchor, b.tripped = day, equity, false
	}
}

func (b *circuitBreaker) check(equity float64) bool {
	if !b.enabled || b.anchor <= 0 {
		return false
	}
	if !b.tripped && (equity-b.anchor)/b.anchor < -b.limit {
		b.tripped = true
	}
	return b.tripped
}

// Breaker exposes the daily drawdown breaker to callers that track equity
// themselves, such as the live trader.
type Breaker struct {
	cb circuitBreaker
}

func NewBreaker(enabled bool, limit float64) *Breaker {
	return &Breaker{cb: circuitBreaker{enabled: enabled, limit: limit, day: -1}}
}

// Update rolls the anchor on a new calendar day and reports whether the
// breaker is tripped at equity.
func (b *Breaker) Update(day int, equity float64) bool {
	b.cb.roll(day, equity)
	return b.cb.check(equity)
}
