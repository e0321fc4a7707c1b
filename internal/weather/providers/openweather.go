package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/muscab101/weather-app/internal/common"
	"github.com/muscab101/weather-app/internal/weather"
)

// DefaultOpenWeatherURL is the OpenWeatherMap 2.5 API root.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5"

// OpenWeatherProvider implements weather.Provider for OpenWeatherMap's
// /weather and /forecast endpoints.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

var _ weather.Provider = (*OpenWeatherProvider)(nil)

// NewOpenWeatherProvider creates the provider. An empty baseURL uses
// DefaultOpenWeatherURL.
func NewOpenWeatherProvider(cfg HTTPClientConfig, apiKey, baseURL string, logger zerolog.Logger) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: cfg,
		circuit: newCircuitBreaker("openweather", cfg.Breaker),
		logger:  logger.With().Str("component", "openweather").Logger(),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type currentPayload struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type forecastPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// Current fetches /weather for the query.
func (p *OpenWeatherProvider) Current(ctx context.Context, q weather.Query) (weather.CurrentConditions, error) {
	var payload currentPayload
	if err := p.get(ctx, "weather", q, &payload); err != nil {
		return weather.CurrentConditions{}, err
	}

	cur := weather.CurrentConditions{
		Name:        payload.Name,
		Country:     payload.Sys.Country,
		Temperature: payload.Main.Temp,
		FeelsLike:   payload.Main.FeelsLike,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
	}
	if len(payload.Weather) > 0 {
		cur.Description = payload.Weather[0].Description
		cur.Icon = payload.Weather[0].Icon
	}
	return cur, nil
}

// Forecast fetches /forecast (5 days, 3-hour steps) for the query.
func (p *OpenWeatherProvider) Forecast(ctx context.Context, q weather.Query) ([]weather.ForecastSample, error) {
	var payload forecastPayload
	if err := p.get(ctx, "forecast", q, &payload); err != nil {
		return nil, err
	}

	samples := make([]weather.ForecastSample, 0, len(payload.List))
	for _, item := range payload.List {
		s := weather.ForecastSample{
			Time:        time.Unix(item.Dt, 0),
			Temperature: item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			s.Icon = item.Weather[0].Icon
			s.Description = item.Weather[0].Description
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (p *OpenWeatherProvider) get(ctx context.Context, endpoint string, q weather.Query, out any) error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: openweather api key is not configured", weather.ErrProvider)
	}

	start := time.Now()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		if q.HasCoords() {
			values.Set("lat", strconv.FormatFloat(*q.Lat, 'f', -1, 64))
			values.Set("lon", strconv.FormatFloat(*q.Lon, 'f', -1, 64))
		} else {
			values.Set("q", q.City)
		}

		u := fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		err = classify(err, q)
		p.logger.Error().
			Ctx(ctx).
			Err(err).
			Str("endpoint", endpoint).
			Str("query", q.String()).
			Msg("OpenWeatherMap request failed")
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Error().Ctx(ctx).Err(cerr).Msg("failed to close response body")
		}
	}()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		p.logger.Error().
			Ctx(ctx).
			Err(err).
			Str("endpoint", endpoint).
			Msg("failed to decode OpenWeatherMap response")
		return fmt.Errorf("%w: decode %s: %w", weather.ErrProvider, endpoint, err)
	}

	p.logger.Debug().
		Ctx(ctx).
		Str("endpoint", endpoint).
		Str("query", q.String()).
		Dur("duration_ms", time.Since(start)).
		Msg("OpenWeatherMap request succeeded")
	return nil
}

// classify turns a 404 on a city name query into weather.ErrNotFound.
func classify(err error, q weather.Query) error {
	var se *StatusError
	if !errors.As(err, &se) || q.HasCoords() {
		return err
	}
	if se.Code == http.StatusNotFound || common.HasAny(strings.ToLower(se.Message), "not found", "no such city") {
		return fmt.Errorf("%w: %q: %w", weather.ErrNotFound, q.City, se)
	}
	return err
}
