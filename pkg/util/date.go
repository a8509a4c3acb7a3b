package util

import (
	"strconv"
	"time"
)

const daysPerMonth = 30.0

// ParseTime accepts RFC3339, RFC3339Nano, "2006-01-02 15:04:05" and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if s is empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignTime rounds t down to the start of its period. Periods of a day or longer
// align to UTC midnight.
func AlignTime(t time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return t
	}
	t = t.UTC()
	if period >= 24*time.Hour {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Truncate(period)
}

// PeriodDays returns the number of whole days between start and end.
func PeriodDays(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}

// PeriodMonths converts whole days to 30-day months.
func PeriodMonths(days int) float64 {
	return float64(days) / daysPerMonth
}
