// Package geo resolves the caller's approximate position.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var (
	ErrGeolocation = errors.New("geolocation failed")
	ErrDenied      = fmt.Errorf("%w: location access denied", ErrGeolocation)
	ErrUnsupported = fmt.Errorf("%w: geolocation not supported", ErrGeolocation)
)

// DefaultIPAPIURL is the ip-api.com JSON endpoint.
const DefaultIPAPIURL = "http://ip-api.com/json/"

// Locator returns a latitude/longitude pair.
type Locator interface {
	Locate(ctx context.Context) (lat, lon float64, err error)
}

// Static always reports the same position. A nil *Static, or one built
// without coordinates, is unsupported.
type Static struct {
	lat, lon float64
	set      bool
}

func NewStatic(lat, lon float64) *Static {
	return &Static{lat: lat, lon: lon, set: true}
}

func (s *Static) Locate(context.Context) (float64, float64, error) {
	if s == nil || !s.set {
		return 0, 0, ErrUnsupported
	}
	return s.lat, s.lon, nil
}

// Unsupported is the Locator used when geolocation is disabled.
type Unsupported struct{}

func (Unsupported) Locate(context.Context) (float64, float64, error) {
	return 0, 0, ErrUnsupported
}

// IPLocator geolocates the host's public address with ip-api.com.
type IPLocator struct {
	client *http.Client
	url    string
	logger zerolog.Logger
}

func NewIPLocator(client *http.Client, url string, logger zerolog.Logger) *IPLocator {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultIPAPIURL
	}
	return &IPLocator{
		client: client,
		url:    url,
		logger: logger.With().Str("component", "geo").Logger(),
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (l *IPLocator) Locate(ctx context.Context) (float64, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrGeolocation, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Error().Ctx(ctx).Err(err).Msg("ip lookup request failed")
		return 0, 0, fmt.Errorf("%w: %w", ErrGeolocation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Warn().Ctx(ctx).Int("status", resp.StatusCode).Msg("ip lookup rejected")
		return 0, 0, fmt.Errorf("%w: status %s", ErrDenied, resp.Status)
	}

	var payload ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, fmt.Errorf("%w: decode: %w", ErrGeolocation, err)
	}
	if !strings.EqualFold(payload.Status, "success") {
		return 0, 0, fmt.Errorf("%w: %s", ErrDenied, payload.Message)
	}

	l.logger.Debug().Ctx(ctx).Float64("lat", payload.Lat).Float64("lon", payload.Lon).Msg("located")
	return payload.Lat, payload.Lon, nil
}
