package domain

import (
	"time"
)

// DueTolerance is the production trigger window; it matches the scheduler cadence.
const DueTolerance = 1 // minutes

// Evaluator decides whether a reminder should fire on the current tick.
type Evaluator struct {
	// TestMode switches to manual QA semantics; never enabled in normal operation.
	TestMode bool
	// TestWindow replaces DueTolerance in test mode (minutes).
	TestWindow int
	// WeeklyDay and WeeklyHour place weekly reminders.
	WeeklyDay  time.Weekday
	WeeklyHour int
}

// Target computes the reminder's wall-clock target in the user's zone.
// ok is false for weekly reminders or when the event is unknown.
func (e Evaluator) Target(r ReminderSetting, u User, ev EventTimes, now time.Time) (Clock, bool, error) {
	kind, ok := r.Type.Event()
	if !ok {
		return 0, false, nil
	}
	at, ok := ev.At(kind)
	if !ok {
		return 0, false, nil
	}
	target := ApplyOffset(at, r.OffsetMinutes)
	if ev.TZ != "" && u.Timezone != "" && ev.TZ != u.Timezone {
		conv, err := ConvertTimezone(target, ev.TZ, u.Timezone, now)
		if err != nil {
			return 0, false, err
		}
		target = conv
	}
	return target, true, nil
}

// IsDue reports whether r is due at now.
func (e Evaluator) IsDue(r ReminderSetting, u User, ev EventTimes, now time.Time) bool {
	localNow := now.In(userLocation(u))
	nowClock := ClockOf(localNow)

	if e.TestMode && r.TestTime != nil {
		return nowClock >= *r.TestTime
	}

	tolerance := DueTolerance
	if e.TestMode && e.TestWindow > 0 {
		tolerance = e.TestWindow
	}

	if r.Type.Weekly() {
		if localNow.Weekday() != e.WeeklyDay {
			return false
		}
		return clockDistance(nowClock, NewClock(e.WeeklyHour, 0)) <= tolerance
	}

	target, ok, err := e.Target(r, u, ev, now)
	if err != nil || !ok {
		return false
	}
	return clockDistance(nowClock, target) <= tolerance
}

// Occurrence returns the target instant that now belongs to. Targets near
// midnight are matched to the nearest calendar day, so ticks on both sides
// of midnight map to the same occurrence. ok is false when there is no target.
func (e Evaluator) Occurrence(r ReminderSetting, u User, ev EventTimes, now time.Time) (time.Time, bool) {
	local := now.In(userLocation(u))

	var target Clock
	switch {
	case e.TestMode && r.TestTime != nil:
		return onDay(local, *r.TestTime), true
	case r.Type.Weekly():
		target = NewClock(e.WeeklyHour, 0)
	default:
		c, ok, err := e.Target(r, u, ev, now)
		if err != nil || !ok {
			return time.Time{}, false
		}
		target = c
	}

	best := onDay(local, target)
	for _, days := range []int{-1, 1} {
		cand := onDay(local.AddDate(0, 0, days), target)
		if absDuration(cand.Sub(local)) < absDuration(best.Sub(local)) {
			best = cand
		}
	}
	return best, true
}

// OccurrenceKey names the occurrence by its local target date (YYYY-MM-DD).
// Without a target the key falls back to now's local date.
func (e Evaluator) OccurrenceKey(r ReminderSetting, u User, ev EventTimes, now time.Time) string {
	if at, ok := e.Occurrence(r, u, ev, now); ok {
		return at.Format(time.DateOnly)
	}
	return now.In(userLocation(u)).Format(time.DateOnly)
}

func userLocation(u User) *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func onDay(day time.Time, c Clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// clockDistance is the shortest distance between two clocks around midnight.
func clockDistance(a, b Clock) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d
}
