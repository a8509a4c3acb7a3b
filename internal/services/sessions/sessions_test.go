package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ictbot/pkg/config"
)

func TestCalendarParisKillZones(t *testing.T) {
	c, err := FromStrategy(config.DefaultStrategy())
	require.NoError(t, err)

	// January: Paris is UTC+1
	winter := func(h, m int) time.Time { return time.Date(2024, 1, 15, h, m, 0, 0, time.UTC) }
	assert.Equal(t, SessionNone, c.SessionAt(winter(6, 59)))
	assert.Equal(t, SessionLondon, c.SessionAt(winter(7, 0)))
	assert.Equal(t, SessionLondon, c.SessionAt(winter(9, 59)))
	assert.Equal(t, SessionNone, c.SessionAt(winter(10, 0)))
	assert.Equal(t, SessionNewYork, c.SessionAt(winter(13, 30)))
	assert.Equal(t, SessionNone, c.SessionAt(winter(16, 0)))

	// July: Paris is UTC+2
	summer := time.Date(2024, 7, 15, 6, 0, 0, 0, time.UTC)
	assert.True(t, c.InKillZone(summer))
}

func TestCalendarRR(t *testing.T) {
	s := config.DefaultStrategy()
	c, err := FromStrategy(s)
	require.NoError(t, err)

	london := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	ny := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	night := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.2, c.RR(london))
	assert.Equal(t, 1.5, c.RR(ny))
	assert.Equal(t, 1.3, c.RR(night))

	s.UseSessionAdaptiveRR = false
	c, err = FromStrategy(s)
	require.NoError(t, err)
	assert.Equal(t, 1.8, c.RR(london))
}

func TestCalendarDayUsesReferenceZone(t *testing.T) {
	c, err := FromStrategy(config.DefaultStrategy())
	require.NoError(t, err)

	lateUTC := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 20240116, c.Day(lateUTC))
	assert.Equal(t, 20240115, New(Config{}).Day(lateUTC))
}

func TestFromStrategyBadTimezone(t *testing.T) {
	s := config.DefaultStrategy()
	s.Timezone = "Mars/Olympus"
	_, err := FromStrategy(s)
	assert.Error(t, err)
}
