package markethours

import (
	"testing"
	"time"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 8, day, hour, minute, 0, 0, Eastern)
}

func TestIsMarketOpenBoundaries(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", at(24, 9, 29), false},
		{"at open", at(24, 9, 30), true},
		{"midday", at(24, 12, 0), true},
		{"at close", at(24, 16, 0), true},
		{"after close", at(24, 16, 1), false},
		{"saturday", at(22, 12, 0), false},
		{"sunday", at(23, 12, 0), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen(%s) = %v, want %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestSessionBounds(t *testing.T) {
	noon := at(24, 12, 0)
	if open := SessionOpen(noon); open.Hour() != 9 || open.Minute() != 30 {
		t.Errorf("session open = %s", open)
	}
	if cl := SessionClose(noon); cl.Hour() != 16 || cl.Minute() != 0 {
		t.Errorf("session close = %s", cl)
	}
}

func TestPrevTradingDayOpenSkipsWeekend(t *testing.T) {
	// Monday 2026-08-24 looks back to Friday 2026-08-21.
	got := PrevTradingDayOpen(at(24, 10, 0))
	want := at(21, 9, 30)
	if !got.Equal(want) {
		t.Errorf("prev trading day open = %s, want %s", got, want)
	}
}

func TestNextOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want time.Time
	}{
		{"premarket same day", at(24, 8, 0), at(24, 9, 30)},
		{"after close", at(24, 17, 0), at(25, 9, 30)},
		{"friday evening", at(21, 18, 0), at(24, 9, 30)},
		{"saturday", at(22, 12, 0), at(24, 9, 30)},
	}
	for _, tc := range cases {
		if got := NextOpen(tc.t); !got.Equal(tc.want) {
			t.Errorf("%s: NextOpen(%s) = %s, want %s", tc.name, tc.t, got, tc.want)
		}
	}
}
