package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpapi "github.com/muscab101/weather-app/internal/api/http"
	"github.com/muscab101/weather-app/internal/cities"
	"github.com/muscab101/weather-app/internal/config"
	"github.com/muscab101/weather-app/internal/geo"
	"github.com/muscab101/weather-app/internal/logger"
	"github.com/muscab101/weather-app/internal/prefs"
	"github.com/muscab101/weather-app/internal/scheduler"
	"github.com/muscab101/weather-app/internal/session"
	"github.com/muscab101/weather-app/internal/store"
	"github.com/muscab101/weather-app/internal/weather"
	"github.com/muscab101/weather-app/internal/weather/providers"
)

const serviceName = "weather-app"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	dotEnvErr := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(os.Stdout, cfg.LogFile, serviceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	if dotEnvErr != nil {
		log.Info().Err(dotEnvErr).Msg("no .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Shared HTTP client for outbound calls, logged through zerolog.
	httpClient := &http.Client{
		Timeout:   cfg.Provider.HTTPTimeout,
		Transport: logger.NewRoundTripper(log, http.DefaultTransport),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cache, sweeper, closeCache, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	metricsCache, err := store.NewMetricsCache(cache, reg)
	if err != nil {
		return fmt.Errorf("failed to register cache metrics: %w", err)
	}

	if sweeper != nil && cfg.Cache.MaxAge > 0 {
		sched := scheduler.New(sweeper, cfg.Cache.SweepInterval, log)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	provider := providers.NewOpenWeatherProvider(providers.HTTPClientConfig{
		Client: httpClient,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.Provider.MaxRetries,
			InitialInterval: cfg.Provider.RetryInitial,
			MaxInterval:     cfg.Provider.RetryMax,
		},
		Breaker: providers.BreakerConfig{
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.Failures,
		},
	}, cfg.Provider.APIKey, cfg.Provider.BaseURL, log)

	service := weather.NewService(provider, metricsCache, loc, log)
	index := cities.NewIndex(log)
	locator := buildLocator(cfg, httpClient, log)

	// The startup session mirrors a fresh page load: load the city list, then
	// warm the cache for the configured position.
	boot := session.New(index, service, session.Options{
		SearchLimit:   cfg.Search.Limit,
		DebounceDelay: cfg.Search.DebounceDelay,
		NoticeTTL:     cfg.Search.NoticeTTL,
		Locator:       locator,
	}, log)
	defer boot.Close()

	if err := boot.LoadCities(ctx, cities.SourceFor(httpClient, cfg.Search.CitiesSource)); err != nil {
		n, _ := boot.Notice()
		log.Error().Err(err).Str("notice", n.Message).Msg("city search disabled")
	}
	if cfg.Geo.Mode != "off" {
		go func() {
			if _, err := boot.LookupHere(ctx); err != nil {
				n, _ := boot.Notice()
				log.Warn().Err(err).Str("notice", n.Message).Msg("startup lookup failed")
			}
		}()
	}

	var themes httpapi.ThemeStore
	if cfg.PrefsPath != "" {
		p, err := prefs.Open(ctx, cfg.PrefsPath, log)
		if err != nil {
			return fmt.Errorf("failed to open preferences: %w", err)
		}
		defer p.Close()
		themes = p
	}

	app := httpapi.NewApp(serviceName)
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Cities:      index,
		Weather:     service,
		Locator:     locator,
		Prefs:       themes,
		Gatherer:    reg,
		SearchLimit: cfg.Search.Limit,
		PreferDark:  cfg.PreferDark,
		IconBaseURL: cfg.Provider.IconBaseURL,
		Logger:      log,
	})

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("http server listening")
		if err := app.Listen(cfg.Address()); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// buildCache returns the configured snapshot cache. The sweeper is nil for
// backends that expire entries themselves.
func buildCache(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (weather.Cache, scheduler.Sweeper, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c := store.NewRedisCache(client, log, cfg.Redis.TTL)
		if err := c.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, nil, func() { _ = client.Close() }, nil
	default:
		c := store.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.MaxAge)
		return c, c, func() {}, nil
	}
}

func buildLocator(cfg *config.AppConfig, client *http.Client, log zerolog.Logger) geo.Locator {
	switch cfg.Geo.Mode {
	case "static":
		lat, lon, _ := cfg.Geo.StaticCoords()
		return geo.NewStatic(lat, lon)
	case "ip":
		return geo.NewIPLocator(client, cfg.Geo.IPAPIURL, log)
	default:
		return geo.Unsupported{}
	}
}
