package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidClock  = errors.New("invalid clock time")
	ErrInvalidOffset = errors.New("invalid offset")
	ErrInvalidTZ     = errors.New("invalid timezone")
)

// Clock is a wall-clock time as minutes since midnight (0..1439).
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(h, m int) Clock {
	return Clock(h*60 + m)
}

// ClockOf returns the wall-clock minute of t in t's own location.
// Seconds are truncated.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// String renders the clock zero-padded as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseClock parses a 24h "HH:MM" value; the hour may have one digit.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(ms) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidClock, s)
	}
	h, herr := strconv.Atoi(hs)
	m, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(h, m), nil
}

// MustParseClock is ParseClock for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ValidateTZ returns the canonical name of an IANA zone. The empty string
// and "Local" are rejected since they do not name a fixed zone.
func ValidateTZ(tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "Local" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTZ, tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTZ, err)
	}
	return loc.String(), nil
}

// LocalDate returns t's calendar date in tz as YYYY-MM-DD.
// Unknown zones fall back to UTC.
func LocalDate(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}
