package zmanim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// Geocoder turns a free-form place name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (Coordinates, error)
}

// Nominatim is a Geocoder backed by OpenStreetMap search.
// Its usage policy allows one request per second, so calls share a limiter.
type Nominatim struct {
	http      *http.Client
	endpoint  string
	userAgent string
	limiter   *rate.Limiter
}

// NewNominatim creates a geocoder; rps <= 0 means one request per second.
func NewNominatim(endpoint, userAgent string, rps float64, timeout time.Duration) *Nominatim {
	if endpoint == "" {
		endpoint = DefaultNominatimURL
	}
	if rps <= 0 {
		rps = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Nominatim{
		http:      &http.Client{Timeout: timeout},
		endpoint:  endpoint,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (n *Nominatim) Geocode(ctx context.Context, place string) (Coordinates, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return Coordinates{}, err
	}
	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Coordinates{}, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("nominatim: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("nominatim: status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinates{}, fmt.Errorf("nominatim: decode: %w", err)
	}
	if len(places) == 0 {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrLocationNotFound, place)
	}
	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("nominatim: lat: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("nominatim: lon: %w", err)
	}
	return Coordinates{Latitude: lat, Longitude: lon}, nil
}
