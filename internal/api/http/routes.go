package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/muscab101/weather-app/internal/cities"
	"github.com/muscab101/weather-app/internal/geo"
	"github.com/muscab101/weather-app/internal/prefs"
	"github.com/muscab101/weather-app/internal/session"
	"github.com/muscab101/weather-app/internal/weather"
)

var validate = validator.New()

// CitySearcher is satisfied by *cities.Index.
type CitySearcher interface {
	Search(prefix string, limit int) []cities.City
	Len() int
}

// ThemeStore is satisfied by *prefs.Store.
type ThemeStore interface {
	Theme(ctx context.Context, preferDark bool) (prefs.Theme, error)
	ToggleTheme(ctx context.Context, preferDark bool) (prefs.Theme, error)
}

// Deps are the collaborators behind the routes. Nil Prefs or Gatherer skip
// the corresponding routes.
type Deps struct {
	Cities      CitySearcher
	Weather     session.Fetcher
	Locator     geo.Locator
	Prefs       ThemeStore
	Gatherer    prometheus.Gatherer
	SearchLimit int
	PreferDark  bool
	IconBaseURL string
	Clock       func() time.Time
	Logger      zerolog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Locator == nil {
		d.Locator = geo.Unsupported{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.SearchLimit <= 0 {
		d.SearchLimit = cities.DefaultLimit
	}
	h := &handlers{d: d, log: d.Logger.With().Str("component", "http").Logger()}

	app.Get("/health", h.health)
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")
	v1.Get("/cities", h.searchCities)
	v1.Get("/weather", h.lookupWeather)
	v1.Get("/geolocate", h.geolocate)
	v1.Get("/icons/:icon", h.icon)
	if d.Prefs != nil {
		v1.Get("/theme", h.theme)
		v1.Post("/theme/toggle", h.toggleTheme)
	}
}

type handlers struct {
	d   Deps
	log zerolog.Logger
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"cities": h.d.Cities.Len(),
	})
}

type citiesQuery struct {
	Q     string
	Limit int `validate:"gte=1,lte=100"`
}

func (h *handlers) searchCities(c *fiber.Ctx) error {
	q := citiesQuery{Q: c.Query("q"), Limit: h.d.SearchLimit}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
		}
		q.Limit = n
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	matches := h.d.Cities.Search(q.Q, q.Limit)
	if matches == nil {
		matches = []cities.City{}
	}
	return c.JSON(matches)
}

type coordsQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

func parseCoords(c *fiber.Ctx) (coordsQuery, error) {
	var q coordsQuery

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return q, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return q, errors.New("lon must be a number")
	}
	q.Lat, q.Lon = lat, lon

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func (h *handlers) lookupWeather(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if city := strings.TrimSpace(c.Query("city")); city != "" {
		snap, err := h.d.Weather.FetchByCity(ctx, city)
		if err != nil {
			return h.lookupError(ctx, err, true)
		}
		return c.JSON(h.view(snap))
	}

	if c.Query("lat") == "" && c.Query("lon") == "" {
		return fiber.NewError(fiber.StatusBadRequest, "either city or lat and lon are required")
	}
	q, err := parseCoords(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	snap, err := h.d.Weather.FetchByCoords(ctx, q.Lat, q.Lon)
	if err != nil {
		return h.lookupError(ctx, err, false)
	}
	return c.JSON(h.view(snap))
}

func (h *handlers) geolocate(c *fiber.Ctx) error {
	ctx := c.UserContext()

	lat, lon, err := h.d.Locator.Locate(ctx)
	if err != nil {
		return h.lookupError(ctx, err, false)
	}
	snap, err := h.d.Weather.FetchByCoords(ctx, lat, lon)
	if err != nil {
		return h.lookupError(ctx, err, false)
	}
	return c.JSON(fiber.Map{
		"lat":     lat,
		"lon":     lon,
		"weather": h.view(snap),
	})
}

type iconParams struct {
	Icon string `validate:"required,alphanum,max=8"`
	Size string `validate:"omitempty,oneof=2x 4x"`
}

func (h *handlers) icon(c *fiber.Ctx) error {
	p := iconParams{Icon: c.Params("icon"), Size: c.Query("size")}
	if err := validate.Struct(p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Redirect(weather.IconURL(h.d.IconBaseURL, p.Icon, p.Size), fiber.StatusFound)
}

func (h *handlers) theme(c *fiber.Ctx) error {
	t, err := h.d.Prefs.Theme(c.UserContext(), h.d.PreferDark)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read theme")
	}
	return c.JSON(fiber.Map{"theme": t})
}

func (h *handlers) toggleTheme(c *fiber.Ctx) error {
	t, err := h.d.Prefs.ToggleTheme(c.UserContext(), h.d.PreferDark)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save theme")
	}
	return c.JSON(fiber.Map{"theme": t})
}

// lookupError converts a lookup failure into the user-facing message with a
// status matching its kind.
func (h *handlers) lookupError(ctx context.Context, err error, byCity bool) error {
	kind := session.Classify(err)
	h.log.Warn().Ctx(ctx).Err(err).Str("kind", string(kind)).Msg("lookup failed")

	code := fiber.StatusInternalServerError
	switch kind {
	case session.KindNotFound:
		code = fiber.StatusNotFound
	case session.KindProvider:
		code = fiber.StatusBadGateway
	case session.KindNetwork:
		code = fiber.StatusServiceUnavailable
	case session.KindGeolocation:
		code = fiber.StatusForbidden
		if errors.Is(err, geo.ErrUnsupported) {
			code = fiber.StatusNotImplemented
		}
	}
	return fiber.NewError(code, session.Message(err, byCity))
}

type dayView struct {
	weather.DaySummary
	IconURL string `json:"iconUrl"`
}

type weatherView struct {
	Current      weather.CurrentConditions `json:"current"`
	WindSpeedKmh int                       `json:"windSpeedKmh"`
	IconURL      string                    `json:"iconUrl"`
	Forecast     []dayView                 `json:"forecast"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

func (h *handlers) view(snap weather.Snapshot) weatherView {
	v := weatherView{
		Current:      snap.Current,
		WindSpeedKmh: snap.Current.WindSpeedKmh(),
		IconURL:      weather.IconURL(h.d.IconBaseURL, snap.Current.Icon, "2x"),
		Forecast:     make([]dayView, 0, len(snap.Forecast)),
		UpdatedAt:    h.d.Clock(),
	}
	for _, d := range snap.Forecast {
		v.Forecast = append(v.Forecast, dayView{
			DaySummary: d,
			IconURL:    weather.IconURL(h.d.IconBaseURL, d.Icon, ""),
		})
	}
	return v
}
