package zmanim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

const DefaultHebcalURL = "https://www.hebcal.com/zmanim"

var (
	// ErrLocationNotFound means the location cannot be resolved; retrying will not help.
	ErrLocationNotFound = errors.New("location not found")
	// ErrIncomplete means the calendar answered without a usable value.
	ErrIncomplete = errors.New("incomplete calendar response")
	// ErrUnavailable means the calendar service is short-circuited.
	ErrUnavailable = errors.New("calendar service unavailable")
)

// Calendar returns daily event times for a point on a date.
type Calendar interface {
	Zmanim(ctx context.Context, at Coordinates, tz string, date string) (domain.EventTimes, error)
}

// ClientConfig tunes the Hebcal client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	// BreakerFailures consecutive failures open the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client talks to the Hebcal zmanim API.
type Client struct {
	http    *http.Client
	conf    ClientConfig
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient builds a Client; zero fields in conf get defaults.
func NewClient(conf ClientConfig, log *zap.Logger) *Client {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultHebcalURL
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 5 * time.Second
	}
	if conf.RetryMaxElapsed <= 0 {
		conf.RetryMaxElapsed = 10 * time.Second
	}
	if conf.BreakerFailures == 0 {
		conf.BreakerFailures = 5
	}
	if conf.BreakerTimeout <= 0 {
		conf.BreakerTimeout = time.Minute
	}
	st := gobreaker.Settings{
		Name:        "hebcal",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     conf.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= conf.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		// A location the service does not know says nothing about its health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound) || errors.Is(err, ErrIncomplete)
		},
	}
	return &Client{
		http:    &http.Client{Timeout: conf.Timeout},
		conf:    conf,
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

type hebcalResponse struct {
	Date     string `json:"date"`
	Location struct {
		Tzid string `json:"tzid"`
	} `json:"location"`
	Times map[string]string `json:"times"`
}

// Zmanim fetches sunrise, sunset and nightfall for the point on date (YYYY-MM-DD).
func (c *Client) Zmanim(ctx context.Context, at Coordinates, tz string, date string) (domain.EventTimes, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, at, tz, date)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.EventTimes{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return domain.EventTimes{}, err
	}
	return res.(domain.EventTimes), nil
}

func (c *Client) fetch(ctx context.Context, at Coordinates, tz string, date string) (domain.EventTimes, error) {
	q := url.Values{}
	q.Set("cfg", "json")
	q.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', 5, 64))
	q.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', 5, 64))
	q.Set("tzid", tz)
	q.Set("date", date)
	endpoint := c.conf.BaseURL + "?" + q.Encode()

	var body hebcalResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrLocationNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("hebcal: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("hebcal: status %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("hebcal: decode: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	notify := func(err error, wait time.Duration) {
		c.log.Debug("hebcal retry", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return domain.EventTimes{}, err
	}
	return body.eventTimes(tz, date)
}

func (r hebcalResponse) eventTimes(tz, date string) (domain.EventTimes, error) {
	ev := domain.EventTimes{Date: date, TZ: tz, Source: domain.SourceLive}
	if r.Location.Tzid != "" {
		ev.TZ = r.Location.Tzid
	}
	if r.Date != "" {
		ev.Date = r.Date
	}
	for key, dst := range map[string]*domain.Clock{
		"sunrise":      &ev.Sunrise,
		"sunset":       &ev.Sunset,
		"tzeit7083deg": &ev.Nightfall,
	} {
		raw, ok := r.Times[key]
		if !ok || raw == "" {
			return domain.EventTimes{}, fmt.Errorf("%w: missing %s", ErrIncomplete, key)
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return domain.EventTimes{}, fmt.Errorf("%w: %s: %v", ErrIncomplete, key, err)
		}
		// The embedded offset is the location's own; read the wall clock as given.
		*dst = domain.ClockOf(t)
	}
	return ev, nil
}
