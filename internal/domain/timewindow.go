package domain

import (
	"fmt"
	"strings"
	"time"
)

// ParseClock converts an "HH:MM" string to minutes since midnight.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(parts[0], "%d", &hours); err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", value, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minutes); err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", value, err)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("clock value out of range: %q", value)
	}
	return hours*60 + minutes, nil
}

// Contains reports whether t falls inside the window. A window whose start
// is after its end wraps past midnight (e.g. 22:00-06:00).
func (w TimeWindow) Contains(t time.Time) (bool, error) {
	start, err := ParseClock(w.Start)
	if err != nil {
		return false, err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false, err
	}

	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now <= end, nil
	}
	// Overnight wraparound.
	return now >= start || now <= end, nil
}
