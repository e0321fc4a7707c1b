package weather

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ForecastDays is the number of full days kept after the current day is dropped.
const ForecastDays = 3

// DefaultIconBaseURL is the OpenWeatherMap static icon location.
const DefaultIconBaseURL = "https://openweathermap.org/img/wn"

// CurrentConditions is the subset of the provider's current-weather payload the
// renderer needs. Values are metric (Celsius, m/s).
type CurrentConditions struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

// WindSpeedKmh converts the m/s wind speed to whole km/h.
func (c CurrentConditions) WindSpeedKmh() int {
	return RoundHalfUp(c.WindSpeed * 3.6)
}

// DaySummary collapses one calendar day of forecast samples.
type DaySummary struct {
	Date        time.Time `json:"date"`
	MinTemp     int       `json:"minTemp"`
	MaxTemp     int       `json:"maxTemp"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
}

// Snapshot is current conditions plus the short forecast for one location.
// Treat it as read-only once returned: cached snapshots are shared.
type Snapshot struct {
	Current  CurrentConditions `json:"current"`
	Forecast []DaySummary      `json:"forecast"`
}

// ForecastSample is a single 3-hourly entry of the provider forecast.
type ForecastSample struct {
	Time        time.Time
	Temperature float64
	Icon        string
	Description string
}

// Query selects a location either by coordinates or by city name.
type Query struct {
	City string
	Lat  *float64
	Lon  *float64
}

// CoordsQuery builds a coordinate query.
func CoordsQuery(lat, lon float64) Query {
	return Query{Lat: &lat, Lon: &lon}
}

// CityQuery builds a city name query.
func CityQuery(name string) Query {
	return Query{City: name}
}

// HasCoords reports whether the query is coordinate based.
func (q Query) HasCoords() bool {
	return q.Lat != nil && q.Lon != nil
}

// String is used for log fields.
func (q Query) String() string {
	if q.HasCoords() {
		return CoordinateKey(*q.Lat, *q.Lon)
	}
	return q.City
}

// CoordinateKey returns the cache key for a coordinate pair. The shortest exact
// decimal form is used so identical floats always produce identical keys.
func CoordinateKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// IconURL derives the static image URL for a provider icon id. An empty size
// yields the small variant, "2x" the large one.
func IconURL(base, icon, size string) string {
	if base == "" {
		base = DefaultIconBaseURL
	}
	if size == "" {
		return fmt.Sprintf("%s/%s.png", base, icon)
	}
	return fmt.Sprintf("%s/%s@%s.png", base, icon, size)
}

// RoundHalfUp rounds to the nearest integer with .5 going towards +Inf.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
