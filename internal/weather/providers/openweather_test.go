package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muscab101/weather-app/internal/weather"
)

const currentBody = `{
  "name": "Paris",
  "sys": {"country": "FR"},
  "main": {"temp": 18.4, "feels_like": 17.9, "humidity": 60},
  "wind": {"speed": 4.1},
  "weather": [{"description": "clear sky", "icon": "01d"}]
}`

const forecastBody = `{
  "list": [
    {"dt": 1717279200, "main": {"temp": 14.2}, "weather": [{"description": "few clouds", "icon": "02n"}]},
    {"dt": 1717290000, "main": {"temp": 12.8}, "weather": [{"description": "light rain", "icon": "10n"}]}
  ]
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc, retries int) *OpenWeatherProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := HTTPClientConfig{
		Client: srv.Client(),
		Backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
		Breaker: BreakerConfig{Timeout: time.Minute, ConsecutiveFailures: 3},
	}
	return NewOpenWeatherProvider(cfg, "test-key", srv.URL, zerolog.Nop())
}

func TestOpenWeather_CurrentByCoords(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "48.85", r.URL.Query().Get("lat"))
		assert.Equal(t, "2.35", r.URL.Query().Get("lon"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(currentBody))
	}, 0)

	cur, err := p.Current(context.Background(), weather.CoordsQuery(48.85, 2.35))
	require.NoError(t, err)
	assert.Equal(t, weather.CurrentConditions{
		Name:        "Paris",
		Country:     "FR",
		Temperature: 18.4,
		FeelsLike:   17.9,
		Humidity:    60,
		WindSpeed:   4.1,
		Description: "clear sky",
		Icon:        "01d",
	}, cur)
}

func TestOpenWeather_ForecastByCity(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "São Paulo", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(forecastBody))
	}, 0)

	samples, err := p.Forecast(context.Background(), weather.CityQuery("São Paulo"))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1717279200), samples[0].Time.Unix())
	assert.Equal(t, 14.2, samples[0].Temperature)
	assert.Equal(t, "02n", samples[0].Icon)
	assert.Equal(t, "light rain", samples[1].Description)
}

func TestOpenWeather_CityNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}, 0)

	_, err := p.Current(context.Background(), weather.CityQuery("Xyz"))
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrNotFound)
	assert.NotErrorIs(t, err, weather.ErrProvider)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "city not found", se.Message)
}

func TestOpenWeather_ProviderErrorsAreNotRetriedByDefault(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 0)

	_, err := p.Current(context.Background(), weather.CoordsQuery(1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrProvider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenWeather_RetriesServerErrorsWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(currentBody))
	}, 2)

	cur, err := p.Current(context.Background(), weather.CoordsQuery(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "Paris", cur.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenWeather_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}, 3)

	_, err := p.Current(context.Background(), weather.CoordsQuery(1, 2))
	assert.ErrorIs(t, err, weather.ErrProvider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenWeather_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 0)

	for i := 0; i < 3; i++ {
		_, err := p.Current(context.Background(), weather.CoordsQuery(1, 2))
		require.Error(t, err)
	}

	_, err := p.Current(context.Background(), weather.CoordsQuery(1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenWeather_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOpenWeatherProvider(HTTPClientConfig{Client: &http.Client{Timeout: time.Second}}, "k", url, zerolog.Nop())

	_, err := p.Forecast(context.Background(), weather.CoordsQuery(1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrNetwork)
}

func TestOpenWeather_MissingKey(t *testing.T) {
	p := NewOpenWeatherProvider(HTTPClientConfig{Client: http.DefaultClient}, "", "", zerolog.Nop())

	_, err := p.Current(context.Background(), weather.CityQuery("Paris"))
	assert.ErrorIs(t, err, weather.ErrProvider)
}
