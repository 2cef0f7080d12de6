package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBuildTaskNoWindow(t *testing.T) {
	task, err := BuildTask("billing-soap", 15, nil)
	if err != nil {
		t.Fatalf("BuildTask: %v", err)
	}
	want := []string{"*/15 * * * *"}
	if diff := cmp.Diff(want, task.CronExprs); diff != "" {
		t.Errorf("cron exprs (-want +got):\n%s", diff)
	}
	if task.Calendar != nil {
		t.Error("no window should produce no calendar trigger")
	}
}

func TestBuildTaskWithWindow(t *testing.T) {
	w := &Window{
		Days:          []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		Start:         "08:00",
		DurationHours: 11,
	}
	task, err := BuildTask("billing-soap", 30, w)
	if err != nil {
		t.Fatalf("BuildTask: %v", err)
	}

	want := []string{"*/30 8-18 * * 1,2,3,4,5"}
	if diff := cmp.Diff(want, task.CronExprs); diff != "" {
		t.Errorf("cron exprs (-want +got):\n%s", diff)
	}

	if task.Calendar == nil {
		t.Fatal("windowed task should carry a calendar trigger")
	}
	if task.Calendar.RepeatEvery != 30*time.Minute {
		t.Errorf("RepeatEvery = %v, want 30m", task.Calendar.RepeatEvery)
	}
	if task.Calendar.Start != "08:00" || task.Calendar.DurationHours != 11 {
		t.Errorf("calendar trigger = %+v", task.Calendar)
	}
}

func TestBuildTaskHourlyAndLargerIntervals(t *testing.T) {
	// A minute step past 59 silently degrades under standard cron, so
	// intervals of an hour or more switch to an hour-step expression.
	tests := []struct {
		name     string
		interval int
		window   *Window
		want     []string
	}{
		{"hourly no window", 60, nil, []string{"0 * * * *"}},
		{"two-hourly no window", 120, nil, []string{"0 */2 * * *"}},
		{"two-hourly windowed", 120,
			&Window{Days: []string{"monday", "tuesday", "wednesday", "thursday", "friday"}, Start: "08:00", DurationHours: 11},
			[]string{"0 8-18/2 * * 1,2,3,4,5"}},
		{"ninety minutes rounds to two hours", 90, nil, []string{"0 */2 * * *"}},
		{"daily", 1440, nil, []string{"0 */24 * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := BuildTask("bulk-export", tt.interval, tt.window)
			if err != nil {
				t.Fatalf("BuildTask: %v", err)
			}
			if diff := cmp.Diff(tt.want, task.CronExprs); diff != "" {
				t.Errorf("cron exprs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildTaskMidnightWrap(t *testing.T) {
	w := &Window{Days: []string{"friday"}, Start: "22:00", DurationHours: 6}
	task, err := BuildTask("overnight-batch", 10, w)
	if err != nil {
		t.Fatalf("BuildTask: %v", err)
	}

	want := []string{
		"*/10 22-23 * * 5",
		"*/10 0-3 * * 6",
	}
	if diff := cmp.Diff(want, task.CronExprs); diff != "" {
		t.Errorf("cron exprs (-want +got):\n%s", diff)
	}
}

func TestBuildTaskNextRun(t *testing.T) {
	w := &Window{Days: []string{"monday"}, Start: "08:00", DurationHours: 2}
	task, err := BuildTask("svc", 30, w)
	if err != nil {
		t.Fatalf("BuildTask: %v", err)
	}

	// Sunday noon; next firing is Monday 08:00.
	sunday := time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)
	next := task.NextRun(sunday)
	want := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}

	// Inside the window the interval drives the next firing.
	inside := time.Date(2024, 1, 8, 8, 10, 0, 0, time.UTC)
	next = task.NextRun(inside)
	want = time.Date(2024, 1, 8, 8, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun inside window = %v, want %v", next, want)
	}
}

func TestBuildTaskRejectsBadInput(t *testing.T) {
	var cfgErr *ConfigError

	if _, err := BuildTask("", 15, nil); !errors.As(err, &cfgErr) {
		t.Errorf("empty name: err = %v, want *ConfigError", err)
	}
	if _, err := BuildTask("svc", 0, nil); !errors.As(err, &cfgErr) {
		t.Errorf("zero interval: err = %v, want *ConfigError", err)
	}
	if _, err := BuildTask("svc", 15, &Window{Days: []string{"funday"}, Start: "08:00", DurationHours: 8}); !errors.As(err, &cfgErr) {
		t.Errorf("bad window: err = %v, want *ConfigError", err)
	}
}
