package mission

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// TimeWindow bounds the temporal scope of an aggregation.
// Sliding windows count back Duration from "now". Fixed windows reset at
// ResetTime boundaries regardless of when the user's activity started.
type TimeWindow struct {
	Duration  string `json:"duration" yaml:"duration"`
	Sliding   bool   `json:"sliding" yaml:"sliding"`
	ResetTime string `json:"reset_time,omitempty" yaml:"reset_time"`
}

var (
	durationPattern  = regexp.MustCompile(`^(\d+)([hdwmy])$`)
	resetTimePattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)
)

// Unit sizes for the duration shorthand. Months and years are fixed-size
// approximations; mission windows are product constructs, not calendars.
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// ParseDuration parses the "<n><unit>" window shorthand ("1d", "7d", "30d",
// "12h", "2w", "1m", "1y") into a time.Duration.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid window duration %q (want e.g. \"7d\", \"12h\")", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("window duration must be positive, got %q", s)
	}
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * day, nil
	case "w":
		return time.Duration(n) * week, nil
	case "m":
		return time.Duration(n) * month, nil
	case "y":
		return time.Duration(n) * year, nil
	}
	return 0, fmt.Errorf("invalid window duration unit in %q", s)
}

// Valid reports whether the window is structurally well-formed.
func (w *TimeWindow) Valid() error {
	if _, err := ParseDuration(w.Duration); err != nil {
		return err
	}
	if w.ResetTime != "" && !resetTimePattern.MatchString(w.ResetTime) {
		return fmt.Errorf("invalid reset_time %q (want \"HH:MM\")", w.ResetTime)
	}
	return nil
}

// Start returns the inclusive lower bound of the window active at now.
// Events with Timestamp < Start(now) must never contribute to aggregates.
//
// Sliding: now - duration.
// Fixed: the most recent period boundary at or before now. Boundaries are
// spaced Duration apart and anchored so that each falls on ResetTime
// (UTC wall clock, "00:00" when unset); events straddling a boundary
// belong to the period containing their timestamp.
func (w *TimeWindow) Start(now time.Time) time.Time {
	dur, err := ParseDuration(w.Duration)
	if err != nil {
		return now // invalid windows are rejected at validation time
	}
	if w.Sliding {
		return now.Add(-dur)
	}
	anchor := w.anchor()
	elapsed := now.Sub(anchor)
	if elapsed < 0 {
		return anchor.Add(-dur * (1 + (-elapsed-1)/dur))
	}
	return anchor.Add(elapsed / dur * dur)
}

// anchor returns the fixed-window epoch: midnight 1970-01-01 UTC shifted
// by the configured reset wall time.
func (w *TimeWindow) anchor() time.Time {
	base := time.Unix(0, 0).UTC()
	if w.ResetTime == "" {
		return base
	}
	m := resetTimePattern.FindStringSubmatch(w.ResetTime)
	if m == nil {
		return base
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return base.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

// PeriodStart returns the start of the streak period containing t.
// Streak periods are calendar days on the window's reset wall time
// (UTC midnight when unset): "consecutive days with qualifying activity".
func (w *TimeWindow) PeriodStart(t time.Time) time.Time {
	daily := TimeWindow{Duration: "1d", ResetTime: w.ResetTime}
	return daily.Start(t)
}
