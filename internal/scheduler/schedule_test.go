package scheduler

import (
	"testing"
	"time"

	"github.com/aipp-workbench/engine/internal/store"
)

func TestComputeNextRun_DayIntervalWithWeekdayConstraint(t *testing.T) {
	// interval=1 day, start_time=09:00, week_days=[1,3,5] (Mon/Wed/Fri),
	// fired Monday 09:05 -> next_run_at is Wednesday 09:00.
	loc := time.UTC
	lastRun := time.Date(2026, 8, 3, 9, 0, 0, 0, loc) // Monday
	now := time.Date(2026, 8, 3, 9, 5, 0, 0, loc)

	task := &store.ScheduledTask{
		ScheduleType:  store.ScheduleInterval,
		IntervalValue: 1,
		IntervalUnit:  store.UnitDay,
		StartTime:     "09:00",
		WeekDays:      []int{1, 3, 5},
		NextRunAt:     &lastRun,
	}

	next, enabled := computeNextRun(task, now)
	if !enabled {
		t.Fatal("expected task to remain enabled")
	}
	want := time.Date(2026, 8, 5, 9, 0, 0, 0, loc) // Wednesday
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestComputeNextRun_Once(t *testing.T) {
	task := &store.ScheduledTask{ScheduleType: store.ScheduleOnce}
	_, enabled := computeNextRun(task, time.Now())
	if enabled {
		t.Error("expected a once task to be disabled after firing")
	}
}

func TestComputeNextRun_MonthDaysSkipsShortMonths(t *testing.T) {
	loc := time.UTC
	lastRun := time.Date(2026, 1, 31, 8, 0, 0, 0, loc)
	now := time.Date(2026, 1, 31, 8, 5, 0, 0, loc)

	task := &store.ScheduledTask{
		ScheduleType:  store.ScheduleInterval,
		IntervalValue: 1,
		IntervalUnit:  store.UnitMonth,
		StartTime:     "08:00",
		MonthDays:     []int{31},
		NextRunAt:     &lastRun,
	}

	next, enabled := computeNextRun(task, now)
	if !enabled {
		t.Fatal("expected task to remain enabled")
	}
	// Adding one calendar month to Jan 31 rolls to Mar 3 (Go's AddDate
	// semantics); February never has a 31st, so March 31 is the next match.
	want := time.Date(2026, 3, 31, 8, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestComputeNextRun_IntervalAdvancesPastNow(t *testing.T) {
	loc := time.UTC
	lastRun := time.Date(2026, 1, 1, 9, 0, 0, 0, loc)
	// now is far past the naive next tick: the loop must advance by whole
	// units until strictly after now, not just add one interval.
	now := time.Date(2026, 1, 10, 9, 30, 0, 0, loc)

	task := &store.ScheduledTask{
		ScheduleType:  store.ScheduleInterval,
		IntervalValue: 1,
		IntervalUnit:  store.UnitDay,
		NextRunAt:     &lastRun,
	}
	next, enabled := computeNextRun(task, now)
	if !enabled {
		t.Fatal("expected task to remain enabled")
	}
	if !next.After(now) {
		t.Errorf("next = %v must be strictly after now = %v", next, now)
	}
	want := time.Date(2026, 1, 11, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestComputeNextRun_CronExpression(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 8, 3, 9, 5, 0, 0, loc) // Monday

	task := &store.ScheduledTask{
		ScheduleType: store.ScheduleCron,
		CronExpr:     "0 10 * * *", // daily at 10:00
	}
	next, enabled := computeNextRun(task, now)
	if !enabled {
		t.Fatal("expected a cron task to remain enabled")
	}
	want := time.Date(2026, 8, 3, 10, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestComputeNextRun_CronExpressionInvalidDisables(t *testing.T) {
	task := &store.ScheduledTask{ScheduleType: store.ScheduleCron, CronExpr: "not a cron expr"}
	_, enabled := computeNextRun(task, time.Now())
	if enabled {
		t.Error("expected an unparseable cron expression to disable the task")
	}
}

func TestAdvanceToWeekDay_AlreadyMatching(t *testing.T) {
	wed := time.Date(2026, 8, 5, 9, 0, 0, 0, time.UTC)
	got := advanceToWeekDay(wed, []int{1, 3, 5})
	if !got.Equal(wed) {
		t.Errorf("expected unchanged, got %v", got)
	}
}
