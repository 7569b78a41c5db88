package core

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduleFor converts a task schedule into a cron.Schedule. DAILY, WEEKLY and MONTHLY
// recur at the minute of ScheduledTime in UTC; MONTHLY on day 29-31 skips shorter months.
// The first occurrence is never earlier than ScheduledTime.
func ScheduleFor(s TaskSchedule) (cron.Schedule, error) {
	start := s.ScheduledTime.UTC()
	if s.IsOneTime || s.RepeatType == RepeatNone {
		return onceSchedule{at: start}, nil
	}
	var spec string
	switch s.RepeatType {
	case RepeatDaily:
		spec = fmt.Sprintf("CRON_TZ=UTC %d %d * * *", start.Minute(), start.Hour())
	case RepeatWeekly:
		spec = fmt.Sprintf("CRON_TZ=UTC %d %d * * %d", start.Minute(), start.Hour(), int(start.Weekday()))
	case RepeatMonthly:
		spec = fmt.Sprintf("CRON_TZ=UTC %d %d %d * *", start.Minute(), start.Hour(), start.Day())
	case RepeatCustom:
		if s.RepeatInterval <= 0 {
			return nil, fmt.Errorf("custom schedule needs a positive repeat interval")
		}
		return intervalSchedule{start: start, every: time.Duration(s.RepeatInterval) * time.Millisecond}, nil
	default:
		return nil, fmt.Errorf("unsupported repeat type %q", s.RepeatType)
	}
	inner, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence: %w", err)
	}
	return anchoredSchedule{start: start, inner: inner}, nil
}

// NextOccurrences returns up to n execution times after base. A finished one-time
// schedule yields fewer than n.
func NextOccurrences(schedule cron.Schedule, base time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := base
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		times = append(times, next)
	}
	return times
}

type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

type anchoredSchedule struct {
	start time.Time
	inner cron.Schedule
}

func (a anchoredSchedule) Next(t time.Time) time.Time {
	if t.Before(a.start) {
		return a.start
	}
	return a.inner.Next(t).UTC()
}

type intervalSchedule struct {
	start time.Time
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	if t.Before(s.start) {
		return s.start
	}
	steps := t.Sub(s.start)/s.every + 1
	return s.start.Add(steps * s.every)
}
