package session

import (
	"errors"
	"time"

	"github.com/muscab101/weather-app/internal/cities"
	"github.com/muscab101/weather-app/internal/geo"
	"github.com/muscab101/weather-app/internal/weather"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 5 * time.Second

// Kind classifies a failure for display.
type Kind string

const (
	KindLoad        Kind = "load"
	KindNetwork     Kind = "network"
	KindProvider    Kind = "provider"
	KindNotFound    Kind = "not_found"
	KindGeolocation Kind = "geolocation"
	KindUnknown     Kind = "unknown"
)

const (
	msgLoad           = "Failed to load city data. Please refresh the page."
	msgCoordsLookup   = "Failed to fetch weather data. Please try again."
	msgCityLookup     = "Unable to fetch weather for that city. Please try again."
	msgLocationDenied = "Location access denied. Please search for a city manually."
	msgNoGeolocation  = "Geolocation not supported."
)

// Notice is a user-facing message that disappears after ExpiresAt.
type Notice struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Classify maps an error chain to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, geo.ErrGeolocation):
		return KindGeolocation
	case errors.Is(err, cities.ErrLoad):
		return KindLoad
	case errors.Is(err, weather.ErrNotFound):
		return KindNotFound
	case errors.Is(err, weather.ErrNetwork):
		return KindNetwork
	case errors.Is(err, weather.ErrProvider):
		return KindProvider
	default:
		return KindUnknown
	}
}

// Message returns the text shown for err. byCity selects the wording used for
// lookups started from a city name.
func Message(err error, byCity bool) string {
	switch Classify(err) {
	case KindLoad:
		return msgLoad
	case KindGeolocation:
		if errors.Is(err, geo.ErrUnsupported) {
			return msgNoGeolocation
		}
		return msgLocationDenied
	}
	if byCity {
		return msgCityLookup
	}
	return msgCoordsLookup
}
