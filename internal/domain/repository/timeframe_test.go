package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	cases := map[string]Timeframe{
		"":    TFM15,
		"h1":  TFH1,
		"M5":  TFM5,
		"1m":  TFM15,
		"D1":  TFD1,
		"W1":  TFM15,
		"m30": TFM30,
	}
	for in, want := range cases {
		if got := NormalizeTimeframe(in); got != want {
			t.Fatalf("NormalizeTimeframe(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestTimeframeDefaults(t *testing.T) {
	if TFH4.Duration() != 4*time.Hour {
		t.Fatalf("H4 duration = %v", TFH4.Duration())
	}
	if TFM15.DefaultBars() != 2880 {
		t.Fatalf("M15 default bars = %d", TFM15.DefaultBars())
	}
	if Timeframe("X").DefaultBars() != 100000 {
		t.Fatalf("unknown timeframe should fall back to 100000")
	}
}
