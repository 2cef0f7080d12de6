// internal/schedule/window.go - Weekly activity windows for service checks
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ConfigError reports an invalid window definition.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schedule config: %s: %s", e.Field, e.Detail)
}

// Window restricts checks to certain weekdays and a daily time range.
// The range is half-open: a check at exactly start+duration is outside.
// A nil *Window means the service is always active.
type Window struct {
	Days          []string `json:"days_of_week" yaml:"days_of_week"`
	Start         string   `json:"start_time" yaml:"start_time"`
	DurationHours int      `json:"duration_hours" yaml:"duration_hours"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate checks the window definition without consulting a clock.
func (w *Window) Validate() error {
	if w == nil {
		return nil
	}
	if _, err := parseClock(w.Start); err != nil {
		return &ConfigError{Field: "start_time", Detail: err.Error()}
	}
	if w.DurationHours < 1 || w.DurationHours > 24 {
		return &ConfigError{Field: "duration_hours", Detail: fmt.Sprintf("%d is outside 1-24", w.DurationHours)}
	}
	if len(w.Days) == 0 {
		return &ConfigError{Field: "days_of_week", Detail: "at least one weekday required"}
	}
	for _, d := range w.Days {
		if _, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; !ok {
			return &ConfigError{Field: "days_of_week", Detail: fmt.Sprintf("unknown weekday %q", d)}
		}
	}
	return nil
}

// IsActive reports whether t falls inside the window. A window that
// crosses midnight stays attributed to its start weekday, so the
// spill-over minutes of the next day count only when the previous day
// is listed.
func (w *Window) IsActive(t time.Time) bool {
	if w == nil {
		return true
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end := start + w.DurationHours*60
	tod := t.Hour()*60 + t.Minute()

	if w.hasDay(t.Weekday()) && tod >= start && tod < end {
		return true
	}
	if end > minutesPerDay && w.hasDay(previousWeekday(t.Weekday())) && tod < end-minutesPerDay {
		return true
	}
	return false
}

// End returns the weekday and minute-of-day the window closes at,
// normalized past midnight. Used when describing the window to humans.
func (w *Window) End() (time.Weekday, int) {
	start, _ := parseClock(w.Start)
	end := start + w.DurationHours*60
	if end >= minutesPerDay {
		end -= minutesPerDay
	}
	last := time.Sunday
	for _, d := range w.Days {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; ok && wd > last {
			last = wd
		}
	}
	return last, end
}

// Weekdays returns the configured days as time.Weekday values, sorted
// Sunday first, with duplicates removed.
func (w *Window) Weekdays() []time.Weekday {
	seen := make(map[time.Weekday]bool)
	for _, d := range w.Days {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; ok {
			seen[wd] = true
		}
	}
	out := make([]time.Weekday, 0, len(seen))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if seen[wd] {
			out = append(out, wd)
		}
	}
	return out
}

// StartMinute returns the window start as minutes after midnight.
func (w *Window) StartMinute() int {
	m, _ := parseClock(w.Start)
	return m
}

func (w *Window) hasDay(d time.Weekday) bool {
	for _, name := range w.Days {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok && wd == d {
			return true
		}
	}
	return false
}

func previousWeekday(d time.Weekday) time.Weekday {
	if d == time.Sunday {
		return time.Saturday
	}
	return d - 1
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", s)
	}
	return hour*60 + minute, nil
}
