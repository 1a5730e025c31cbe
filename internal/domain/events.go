package domain

// EventSource records how a set of event times was obtained.
type EventSource int

const (
	SourceLive     EventSource = iota + 1 // calendar service, requested location
	SourceFallback                        // calendar service, fallback location
	SourceSeasonal                        // static month-based approximation
)

func (s EventSource) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceFallback:
		return "fallback"
	case SourceSeasonal:
		return "seasonal"
	default:
		return "unknown"
	}
}

// EventTimes are the daily event clocks for one location and date,
// expressed in the location's own zone (TZ).
type EventTimes struct {
	Date      string // YYYY-MM-DD
	TZ        string // IANA zone the clocks are expressed in
	Sunrise   Clock
	Sunset    Clock
	Nightfall Clock
	Source    EventSource
}

// At returns the clock of the given event.
func (e EventTimes) At(kind EventKind) (Clock, bool) {
	switch kind {
	case EventSunrise:
		return e.Sunrise, true
	case EventSunset:
		return e.Sunset, true
	case EventNightfall:
		return e.Nightfall, true
	default:
		return 0, false
	}
}
