package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OffsetPresets are the choices shown in the offset prompt, in order (1-based on screen).
var OffsetPresets = []int{0, -10, -15, -30, -60}

// maxOffset bounds user-entered offsets to one day either way.
const maxOffset = minutesPerDay

// ApplyOffset adds a signed minute offset to an event clock, wrapping around
// midnight in both directions. The date never rolls: 00:10 - 20m is 23:50 of
// the same calendar day as far as the caller is concerned.
func ApplyOffset(event Clock, offset int) Clock {
	m := (int(event) + offset) % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return Clock(m)
}

// ConvertTimezone re-expresses clock c in zone fromTZ as the wall clock in toTZ
// on the reference date. Offsets are taken at that date, so DST is honored.
func ConvertTimezone(c Clock, fromTZ, toTZ string, ref time.Time) (Clock, error) {
	if fromTZ == toTZ {
		return c, nil
	}
	from, err := time.LoadLocation(fromTZ)
	if err != nil {
		return 0, fmt.Errorf("load %q: %w", fromTZ, err)
	}
	to, err := time.LoadLocation(toTZ)
	if err != nil {
		return 0, fmt.Errorf("load %q: %w", toTZ, err)
	}
	refFrom := ref.In(from)
	at := time.Date(refFrom.Year(), refFrom.Month(), refFrom.Day(), c.Hour(), c.Minute(), 0, 0, from)
	return ClockOf(at.In(to)), nil
}

// DescribeOffset renders an offset for humans, e.g. "30 minutes before".
func DescribeOffset(minutes int) string {
	if minutes == 0 {
		return "at the event time"
	}
	dir := "before"
	if minutes > 0 {
		dir = "after"
	}
	abs := minutes
	if abs < 0 {
		abs = -abs
	}
	return formatSpan(abs) + " " + dir
}

func formatSpan(mins int) string {
	h, m := mins/60, mins%60
	unit := func(n int, one, many string) string {
		if n == 1 {
			return "1 " + one
		}
		return strconv.Itoa(n) + " " + many
	}
	switch {
	case h == 0:
		return unit(m, "minute", "minutes")
	case m == 0:
		return unit(h, "hour", "hours")
	default:
		return unit(h, "hour", "hours") + " " + unit(m, "minute", "minutes")
	}
}

// ParseOffset interprets a reply to the offset prompt.
//
//	"1".."5"      preset from OffsetPresets
//	"-30", "+15"  signed minutes
//	"30 before"   minutes before, "10 after" minutes after
//	"45"          any other bare number is minutes before
func ParseOffset(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidOffset)
	}

	fields := strings.Fields(s)
	sign := -1
	switch {
	case len(fields) == 2 && fields[1] == "before":
	case len(fields) == 2 && fields[1] == "after":
		sign = 1
	case len(fields) == 1:
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	num := fields[0]

	explicit := strings.HasPrefix(num, "-") || strings.HasPrefix(num, "+")
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}

	var offset int
	switch {
	case explicit && len(fields) == 1:
		offset = n
	case explicit:
		return 0, fmt.Errorf("%w: sign and direction both given", ErrInvalidOffset)
	case len(fields) == 1 && n >= 1 && n <= len(OffsetPresets):
		offset = OffsetPresets[n-1]
	default:
		offset = sign * n
	}

	if offset < -maxOffset || offset > maxOffset {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidOffset)
	}
	return offset, nil
}
