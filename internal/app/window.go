package app

import (
	"fmt"
	"strings"
	"time"

	"lending-snapshots/internal/service"
	"lending-snapshots/internal/snapshot"
)

// ParseWindow turns --from/--to flag values into a session window. Each bound accepts
// RFC3339 or a bare YYYY-MM-DD date in loc; a bare --to date covers that whole day.
// Empty bounds default to the last lookbackDays days ending now.
func ParseWindow(from, to string, now time.Time, lookbackDays int, loc *time.Location) (service.Window, error) {
	if loc == nil {
		loc = time.UTC
	}

	end := now
	if to != "" {
		t, dateOnly, err := parseBound(to, loc)
		if err != nil {
			return service.Window{}, fmt.Errorf("invalid --to value: %w", err)
		}
		end = t
		if dateOnly {
			end = t.AddDate(0, 0, 1).Add(-time.Second)
		}
	}

	start := end.AddDate(0, 0, -lookbackDays)
	if from != "" {
		t, _, err := parseBound(from, loc)
		if err != nil {
			return service.Window{}, fmt.Errorf("invalid --from value: %w", err)
		}
		start = t
	}

	window := service.Window{From: start, To: end}
	if err := window.Validate(); err != nil {
		return service.Window{}, err
	}
	return window, nil
}

func parseBound(value string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(snapshot.DayLayout, value, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC3339 or %s, got %q", snapshot.DayLayout, value)
	}
	return t, false, nil
}
