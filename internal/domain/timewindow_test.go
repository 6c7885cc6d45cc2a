package domain

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{" 08:15 ", 495, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"12", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestTimeWindowContains(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 6, 1, hour, minute, 0, 0, time.UTC)
	}

	daytime := TimeWindow{Start: "09:00", End: "17:00"}
	overnight := TimeWindow{Start: "22:00", End: "06:00"}

	cases := []struct {
		window TimeWindow
		when   time.Time
		want   bool
	}{
		{daytime, at(12, 0), true},
		{daytime, at(9, 0), true},
		{daytime, at(17, 0), true},
		{daytime, at(8, 59), false},
		{daytime, at(17, 1), false},
		{overnight, at(23, 30), true},
		{overnight, at(2, 0), true},
		{overnight, at(6, 0), true},
		{overnight, at(12, 0), false},
	}
	for _, tc := range cases {
		got, err := tc.window.Contains(tc.when)
		if err != nil {
			t.Fatalf("Contains(%v): %v", tc.when, err)
		}
		if got != tc.want {
			t.Fatalf("window %s-%s at %s = %v, want %v",
				tc.window.Start, tc.window.End, tc.when.Format("15:04"), got, tc.want)
		}
	}
}

func TestTimeWindowContainsRejectsMalformedBounds(t *testing.T) {
	window := TimeWindow{Start: "25:00", End: "06:00"}
	if _, err := window.Contains(time.Now()); err == nil {
		t.Fatalf("expected error for malformed window")
	}
}
