package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DateLayout is the calendar-date format used for schedule dates.
const DateLayout = "2006-01-02"

// TimeWindow is a half-open interval [Start, End) in minutes after midnight.
type TimeWindow struct {
	Start int
	End   int
}

// Overlaps reports whether the two windows share any minute. Back-to-back
// windows (w.End == o.Start) do not overlap.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// ParseTimeWindow parses "HH:MM" or "HH:MM:SS" bounds.
func ParseTimeWindow(start, end string) (TimeWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}
	if e <= s {
		return TimeWindow{}, fmt.Errorf("time window %s-%s ends before it starts", start, end)
	}
	return TimeWindow{Start: s, End: e}, nil
}

func parseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", raw)
		}
	}
	minutes := h*60 + m
	if minutes > 24*60 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return minutes, nil
}
