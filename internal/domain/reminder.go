package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind names a daily event a reminder can be anchored to.
type EventKind int

const (
	EventSunrise EventKind = iota + 1
	EventSunset
	EventNightfall
)

func (k EventKind) String() string {
	switch k {
	case EventSunrise:
		return "sunrise"
	case EventSunset:
		return "sunset"
	case EventNightfall:
		return "nightfall"
	default:
		return "unknown"
	}
}

// ReminderType is the closed set of reminders a user can subscribe to.
type ReminderType string

const (
	ReminderTefillin ReminderType = "tefillin" // before sunset
	ReminderShema    ReminderType = "shema"    // around sunrise
	ReminderMaariv   ReminderType = "maariv"   // after nightfall
	ReminderShabbat  ReminderType = "shabbat"  // weekly, fixed weekday and hour
)

// ReminderTypes lists every type in menu order.
var ReminderTypes = []ReminderType{ReminderTefillin, ReminderShema, ReminderMaariv, ReminderShabbat}

// ParseReminderType validates a stored or typed reminder tag.
func ParseReminderType(s string) (ReminderType, error) {
	t := ReminderType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case ReminderTefillin, ReminderShema, ReminderMaariv, ReminderShabbat:
		return t, nil
	default:
		return "", fmt.Errorf("unknown reminder type %q", s)
	}
}

// Weekly reports whether the type fires on a fixed weekday instead of an event offset.
func (t ReminderType) Weekly() bool {
	return t == ReminderShabbat
}

// Event returns the daily event the type is anchored to.
// Weekly types have no event and return ok=false.
func (t ReminderType) Event() (EventKind, bool) {
	switch t {
	case ReminderTefillin:
		return EventSunset, true
	case ReminderShema:
		return EventSunrise, true
	case ReminderMaariv:
		return EventNightfall, true
	case ReminderShabbat:
		return 0, false
	default:
		return 0, false
	}
}

// Title is the user-facing name of the type.
func (t ReminderType) Title() string {
	switch t {
	case ReminderTefillin:
		return "Tefillin (before sunset)"
	case ReminderShema:
		return "Shema (sunrise)"
	case ReminderMaariv:
		return "Maariv (nightfall)"
	case ReminderShabbat:
		return "Shabbat (weekly)"
	default:
		return string(t)
	}
}

// ReminderSetting is one user's subscription to a reminder type.
// At most one setting exists per (UserID, Type).
type ReminderSetting struct {
	ID            int64
	UserID        int64
	Type          ReminderType
	Enabled       bool
	OffsetMinutes int        // negative = before the event, positive = after
	LastSentAt    *time.Time // UTC, nullable
	TestTime      *Clock     // manual trigger time, only honored in test mode
	CreatedAt     time.Time  // UTC
}

// ReminderUpdate carries the fields to change; nil fields are left untouched.
// The reminder type is never updatable.
type ReminderUpdate struct {
	Enabled       *bool
	OffsetMinutes *int
	LastSentAt    *time.Time
	TestTime      *Clock
	ClearTestTime bool
}

// ScheduledReminder is an enabled setting joined with its active owner.
type ScheduledReminder struct {
	Reminder ReminderSetting
	User     User
}
