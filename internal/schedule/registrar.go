// internal/schedule/registrar.go - Build OS scheduler task descriptors for services
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CalendarTrigger describes a calendar-style trigger the way Windows
// Task Scheduler expects it: a start time, repeat interval, and a
// repetition duration per listed day.
type CalendarTrigger struct {
	Days          []string      `json:"days_of_week"`
	Start         string        `json:"start_time"`
	DurationHours int           `json:"duration_hours"`
	RepeatEvery   time.Duration `json:"repeat_every"`
}

// TaskSpec is the registrar output for one service: equivalent cron
// lines for Unix hosts and a calendar trigger for Windows hosts.
type TaskSpec struct {
	Name      string           `json:"name"`
	CronExprs []string         `json:"cron_exprs"`
	Calendar  *CalendarTrigger `json:"calendar,omitempty"`

	schedules []cron.Schedule
}

// NextRun returns the earliest next firing across the task's cron
// expressions, or the zero time when the task has none.
func (t *TaskSpec) NextRun(after time.Time) time.Time {
	var next time.Time
	for _, s := range t.schedules {
		n := s.Next(after)
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

// BuildTask translates a service's interval and activity window into a
// scheduler task. A window that crosses midnight produces two cron
// expressions, one for the start-day stretch and one for the spill-over
// on the following days.
func BuildTask(name string, intervalMinutes int, w *Window) (*TaskSpec, error) {
	if name == "" {
		return nil, &ConfigError{Field: "name", Detail: "must not be empty"}
	}
	if intervalMinutes < 1 {
		return nil, &ConfigError{Field: "interval_minutes", Detail: fmt.Sprintf("%d is below 1", intervalMinutes)}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	task := &TaskSpec{Name: name}
	if w == nil {
		task.CronExprs = []string{cronLine(intervalMinutes, 0, 23, nil)}
	} else {
		start := w.StartMinute()
		end := start + w.DurationHours*60
		days := w.Weekdays()

		if end <= minutesPerDay {
			task.CronExprs = []string{cronLine(intervalMinutes, start/60, (end-1)/60, days)}
		} else {
			task.CronExprs = []string{
				cronLine(intervalMinutes, start/60, 23, days),
				cronLine(intervalMinutes, 0, (end-minutesPerDay-1)/60, followingDays(days)),
			}
		}
		task.Calendar = &CalendarTrigger{
			Days:          w.Days,
			Start:         w.Start,
			DurationHours: w.DurationHours,
			RepeatEvery:   time.Duration(intervalMinutes) * time.Minute,
		}
	}

	for _, expr := range task.CronExprs {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, &ConfigError{Field: "cron", Detail: fmt.Sprintf("generated %q: %v", expr, err)}
		}
		task.schedules = append(task.schedules, sched)
	}
	return task, nil
}

func cronLine(interval, firstHour, lastHour int, days []time.Weekday) string {
	hours := fmt.Sprintf("%d-%d", firstHour, lastHour)
	if firstHour == 0 && lastHour == 23 {
		hours = "*"
	}
	if firstHour == lastHour {
		hours = fmt.Sprintf("%d", firstHour)
	}

	minutes := fmt.Sprintf("*/%d", interval)
	if interval >= 60 {
		// The cron minute field cannot step past 59; intervals of an
		// hour or more become an hour-step expression instead.
		step := (interval + 30) / 60
		if interval%60 != 0 {
			logrus.WithFields(logrus.Fields{
				"interval_minutes": interval,
				"hour_step":        step,
			}).Warn("Interval is not a whole number of hours; cron schedule rounds to the nearest hour")
		}
		minutes = "0"
		if step > 1 && firstHour != lastHour {
			hours += "/" + strconv.Itoa(step)
		}
	}
	return fmt.Sprintf("%s %s * * %s", minutes, hours, dowList(days))
}

func dowList(days []time.Weekday) string {
	if len(days) == 0 {
		return "*"
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprintf("%d", int(d))
	}
	return strings.Join(parts, ",")
}

func followingDays(days []time.Weekday) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	seen := make(map[time.Weekday]bool)
	for _, d := range days {
		next := (d + 1) % 7
		if !seen[next] {
			seen[next] = true
			out = append(out, next)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
