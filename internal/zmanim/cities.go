package zmanim

import "strings"

// Coordinates is a point on the globe in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type city struct {
	coords Coordinates
	tz     string
}

// knownCities skips the geocoder for the most common locations.
var knownCities = map[string]city{
	"jerusalem":     {Coordinates{31.76904, 35.21633}, "Asia/Jerusalem"},
	"tel aviv":      {Coordinates{32.08088, 34.78057}, "Asia/Jerusalem"},
	"haifa":         {Coordinates{32.81841, 34.9885}, "Asia/Jerusalem"},
	"beer sheva":    {Coordinates{31.25181, 34.7913}, "Asia/Jerusalem"},
	"bnei brak":     {Coordinates{32.08074, 34.8338}, "Asia/Jerusalem"},
	"petah tikva":   {Coordinates{32.08707, 34.88747}, "Asia/Jerusalem"},
	"netanya":       {Coordinates{32.33291, 34.85992}, "Asia/Jerusalem"},
	"new york":      {Coordinates{40.71427, -74.00597}, "America/New_York"},
	"london":        {Coordinates{51.50853, -0.12574}, "Europe/London"},
	"los angeles":   {Coordinates{34.05223, -118.24368}, "America/Los_Angeles"},
	"paris":         {Coordinates{48.85341, 2.3488}, "Europe/Paris"},
	"buenos aires":  {Coordinates{-34.61315, -58.37723}, "America/Argentina/Buenos_Aires"},
	"johannesburg":  {Coordinates{-26.20227, 28.04363}, "Africa/Johannesburg"},
	"melbourne":     {Coordinates{-37.814, 144.96332}, "Australia/Melbourne"},
	"toronto":       {Coordinates{43.70011, -79.4163}, "America/Toronto"},
	"miami":         {Coordinates{25.77427, -80.19366}, "America/New_York"},
	"moscow":        {Coordinates{55.75222, 37.61556}, "Europe/Moscow"},
	"antwerp":       {Coordinates{51.21989, 4.40346}, "Europe/Brussels"},
	"montreal":      {Coordinates{45.50884, -73.58781}, "America/Toronto"},
	"ramat gan":     {Coordinates{32.08227, 34.81065}, "Asia/Jerusalem"},
	"ashdod":        {Coordinates{31.79213, 34.64966}, "Asia/Jerusalem"},
	"modiin illit":  {Coordinates{31.93221, 35.04416}, "Asia/Jerusalem"},
	"beit shemesh":  {Coordinates{31.73072, 34.99293}, "Asia/Jerusalem"},
	"safed":         {Coordinates{32.96465, 35.496}, "Asia/Jerusalem"},
	"tiberias":      {Coordinates{32.79221, 35.53124}, "Asia/Jerusalem"},
	"eilat":         {Coordinates{29.55805, 34.94821}, "Asia/Jerusalem"},
	"chicago":       {Coordinates{41.85003, -87.65005}, "America/Chicago"},
	"lakewood":      {Coordinates{40.09789, -74.21764}, "America/New_York"},
	"manchester":    {Coordinates{53.48095, -2.23743}, "Europe/London"},
	"zurich":        {Coordinates{47.36667, 8.55}, "Europe/Zurich"},
}

// normalizeLocation folds case and whitespace for lookups and cache keys.
func normalizeLocation(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// LookupCity returns coordinates and zone for an allow-listed city.
func LookupCity(name string) (Coordinates, string, bool) {
	c, ok := knownCities[normalizeLocation(name)]
	return c.coords, c.tz, ok
}
