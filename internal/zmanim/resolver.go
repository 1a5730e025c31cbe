package zmanim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Times domain.EventTimes
	// Location is the candidate that produced Times; empty for the seasonal approximation.
	Location string
	// Corrected is set when the user's own location is unknown to the calendar
	// and a fallback answered instead; callers may persist Location.
	Corrected bool
}

// Resolver turns (location, zone, date) into event times.
type Resolver struct {
	calendar  Calendar
	geocoder  Geocoder
	cache     *Cache
	fallbacks []string
	log       *zap.Logger
}

// NewResolver wires the collaborators. geocoder may be nil, in which case only
// allow-listed cities are resolvable.
func NewResolver(cal Calendar, geo Geocoder, cache *Cache, fallbacks []string, log *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &Resolver{calendar: cal, geocoder: geo, cache: cache, fallbacks: fallbacks, log: log}
}

// Lookup resolves a single location with no fallback. date is interpreted in tz.
func (r *Resolver) Lookup(ctx context.Context, location, tz string, date time.Time) (domain.EventTimes, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return domain.EventTimes{}, fmt.Errorf("%w: empty", ErrLocationNotFound)
	}
	day := domain.LocalDate(date, tz)
	if ev, ok := r.cache.Get(location, day); ok {
		return ev, nil
	}

	at, zone, err := r.locate(ctx, location)
	if err != nil {
		return domain.EventTimes{}, err
	}
	if zone == "" {
		zone = tz
	}
	ev, err := r.calendar.Zmanim(ctx, at, zone, day)
	if err != nil {
		return domain.EventTimes{}, err
	}
	ev.Source = domain.SourceLive
	r.cache.Put(location, day, ev)
	return ev, nil
}

func (r *Resolver) locate(ctx context.Context, location string) (Coordinates, string, error) {
	if at, zone, ok := LookupCity(location); ok {
		return at, zone, nil
	}
	if r.geocoder == nil {
		return Coordinates{}, "", fmt.Errorf("%w: %q", ErrLocationNotFound, location)
	}
	at, err := r.geocoder.Geocode(ctx, location)
	if err != nil {
		return Coordinates{}, "", err
	}
	return at, "", nil
}

// Resolve never fails: it tries the user's location, then each fallback
// location, then the seasonal approximation.
func (r *Resolver) Resolve(ctx context.Context, location, tz string, date time.Time) Resolution {
	candidates := make([]string, 0, len(r.fallbacks)+1)
	if strings.TrimSpace(location) != "" {
		candidates = append(candidates, location)
	}
	for _, fb := range r.fallbacks {
		if !strings.EqualFold(strings.TrimSpace(fb), strings.TrimSpace(location)) {
			candidates = append(candidates, fb)
		}
	}

	primaryUnknown := strings.TrimSpace(location) == ""
	for i, name := range candidates {
		if ctx.Err() != nil {
			break
		}
		ev, err := r.Lookup(ctx, name, tz, date)
		if err == nil {
			primary := i == 0 && !primaryUnknown
			if !primary {
				ev.Source = domain.SourceFallback
			}
			return Resolution{Times: ev, Location: name, Corrected: !primary && primaryUnknown}
		}
		r.log.Warn("event time lookup failed",
			zap.String("location", name),
			zap.String("tz", tz),
			zap.Error(err),
		)
		if i == 0 && errors.Is(err, ErrLocationNotFound) {
			primaryUnknown = true
		}
	}

	r.log.Warn("using seasonal event times", zap.String("location", location), zap.String("tz", tz))
	return Resolution{Times: Seasonal(date, tz)}
}

// Seasonal approximates event times from the month alone.
func Seasonal(date time.Time, tz string) domain.EventTimes {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, tz = time.UTC, "UTC"
	}
	local := date.In(loc)
	ev := domain.EventTimes{
		Date:   local.Format("2006-01-02"),
		TZ:     tz,
		Source: domain.SourceSeasonal,
	}
	if m := local.Month(); m >= time.April && m <= time.September {
		ev.Sunrise = domain.NewClock(5, 45)
		ev.Sunset = domain.NewClock(19, 30)
		ev.Nightfall = domain.NewClock(19, 55)
	} else {
		ev.Sunrise = domain.NewClock(6, 30)
		ev.Sunset = domain.NewClock(17, 0)
		ev.Nightfall = domain.NewClock(17, 25)
	}
	return ev
}
