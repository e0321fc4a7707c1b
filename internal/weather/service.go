package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service fetches current conditions and forecast for a location and reduces
// them into a Snapshot. Coordinate lookups are read through the cache; city
// name lookups always go to the provider.
type Service struct {
	provider Provider
	cache    Cache
	loc      *time.Location
	logger   zerolog.Logger
}

// NewService creates a new Service. A nil loc uses the process local zone for
// forecast day boundaries.
func NewService(provider Provider, cache Cache, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		provider: provider,
		cache:    cache,
		loc:      loc,
		logger:   logger.With().Str("component", "weather").Logger(),
	}
}

// FetchByCoords returns the snapshot for a coordinate pair, serving repeated
// pairs from the cache without touching the network.
func (s *Service) FetchByCoords(ctx context.Context, lat, lon float64) (Snapshot, error) {
	key := CoordinateKey(lat, lon)

	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, key); ok {
			s.logger.Debug().Ctx(ctx).Str("key", key).Msg("cache hit")
			return snap, nil
		}
		s.logger.Debug().Ctx(ctx).Str("key", key).Msg("cache miss")
	}

	snap, err := s.fetch(ctx, CoordsQuery(lat, lon))
	if err != nil {
		return Snapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, snap); err != nil {
			s.logger.Error().Ctx(ctx).Err(err).Str("key", key).Msg("cache put failed")
		}
	}
	return snap, nil
}

// FetchByCity returns the snapshot for a city name. Results are not cached.
func (s *Service) FetchByCity(ctx context.Context, name string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, fmt.Errorf("empty city name: %w", ErrNotFound)
	}
	return s.fetch(ctx, CityQuery(name))
}

// fetch runs both provider requests concurrently and only combines them when
// both succeed. The first failure cancels the other request.
func (s *Service) fetch(ctx context.Context, q Query) (Snapshot, error) {
	start := time.Now()

	var (
		current CurrentConditions
		samples []ForecastSample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.provider.Current(gctx, q)
		if err != nil {
			return fmt.Errorf("current conditions: %w", err)
		}
		current = c
		return nil
	})
	g.Go(func() error {
		f, err := s.provider.Forecast(gctx, q)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		samples = f
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error().
			Ctx(ctx).
			Err(err).
			Str("provider", s.provider.Name()).
			Str("query", q.String()).
			Msg("weather lookup failed")
		return Snapshot{}, err
	}

	snap := Snapshot{
		Current:  current,
		Forecast: ReduceForecast(samples, s.loc),
	}

	s.logger.Info().
		Ctx(ctx).
		Str("provider", s.provider.Name()).
		Str("query", q.String()).
		Int("forecast_days", len(snap.Forecast)).
		Dur("duration_ms", time.Since(start)).
		Msg("weather lookup succeeded")

	return snap, nil
}
