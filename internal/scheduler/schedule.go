package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aipp-workbench/engine/internal/store"
)

// cronParser accepts the standard five-field form (minute hour dom month
// dow) used by ScheduledTask.CronExpr.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// addInterval advances t by n whole units of the given kind, using
// calendar-correct arithmetic for day/week/month so that, e.g., adding one
// month to Jan 31 lands on the last valid day-rollover semantics of
// time.AddDate rather than a fixed 30-day duration.
func addInterval(t time.Time, n int, unit store.IntervalUnit) time.Time {
	if n <= 0 {
		n = 1
	}
	switch unit {
	case store.UnitMinute:
		return t.Add(time.Duration(n) * time.Minute)
	case store.UnitHour:
		return t.Add(time.Duration(n) * time.Hour)
	case store.UnitDay:
		return t.AddDate(0, 0, n)
	case store.UnitWeek:
		return t.AddDate(0, 0, 7*n)
	case store.UnitMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.Add(time.Duration(n) * time.Hour)
	}
}

// snapToStartTime replaces t's wall-clock hour/minute with the "HH:MM"
// encoded in startTime, in t's own location, leaving the date untouched. An
// unparseable startTime is a no-op.
func snapToStartTime(t time.Time, startTime string) time.Time {
	hh, mm, ok := parseHHMM(startTime)
	if !ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), hh, mm, 0, 0, t.Location())
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}

// isoWeekday converts Go's Sunday=0..Saturday=6 into ISO Monday=1..Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// maxDayScan bounds the day-by-day search for a matching week/month day; two
// years comfortably covers any realistic week_days/month_days configuration,
// including a month_days value that only occurs once a year (e.g. Feb 29).
const maxDayScan = 366 * 2

// advanceToWeekDay steps t forward one day at a time (preserving its
// wall-clock time) until its ISO weekday is in days. t itself is tested
// first: if it already matches, it is returned unchanged.
func advanceToWeekDay(t time.Time, days []int) time.Time {
	if len(days) == 0 {
		return t
	}
	cur := t
	for i := 0; i < maxDayScan; i++ {
		if containsInt(days, isoWeekday(cur)) {
			return cur
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return t
}

// advanceToMonthDay steps t forward one day at a time until its day-of-month
// is in days, which naturally skips months that lack that day (e.g. day 31
// in April) because AddDate rolls over rather than erroring.
func advanceToMonthDay(t time.Time, days []int) time.Time {
	if len(days) == 0 {
		return t
	}
	cur := t
	for i := 0; i < maxDayScan; i++ {
		if containsInt(days, cur.Day()) {
			return cur
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return t
}

// computeNextRun returns the task's next fire time and whether the task
// stays enabled.
func computeNextRun(task *store.ScheduledTask, now time.Time) (time.Time, bool) {
	if task.ScheduleType == store.ScheduleOnce {
		return time.Time{}, false
	}

	if task.ScheduleType == store.ScheduleCron {
		sched, err := cronParser.Parse(task.CronExpr)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(now), true
	}

	base := now
	if task.NextRunAt != nil && !task.NextRunAt.IsZero() {
		base = *task.NextRunAt
	}

	next := addInterval(base, task.IntervalValue, task.IntervalUnit)
	for !next.After(now) {
		next = addInterval(next, task.IntervalValue, task.IntervalUnit)
	}

	switch task.IntervalUnit {
	case store.UnitDay, store.UnitWeek, store.UnitMonth:
		if task.StartTime != "" {
			snapped := snapToStartTime(next, task.StartTime)
			for !snapped.After(now) {
				next = addInterval(next, task.IntervalValue, task.IntervalUnit)
				snapped = snapToStartTime(next, task.StartTime)
			}
			next = snapped
		}
	}

	// week_days/month_days, when configured, constrain the result
	// regardless of the declared interval unit.
	if len(task.WeekDays) > 0 {
		next = advanceToWeekDay(next, task.WeekDays)
	} else if len(task.MonthDays) > 0 {
		next = advanceToMonthDay(next, task.MonthDays)
	}

	return next, true
}
