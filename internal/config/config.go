package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Provider struct {
	APIKey       string        `envconfig:"OPENWEATHER_API_KEY" required:"true"`
	BaseURL      string        `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5" validate:"url"`
	IconBaseURL  string        `envconfig:"ICON_BASE_URL" default:"https://openweathermap.org/img/wn" validate:"url"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	MaxRetries   int           `envconfig:"PROVIDER_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	RetryInitial time.Duration `envconfig:"PROVIDER_RETRY_INITIAL" default:"200ms"`
	RetryMax     time.Duration `envconfig:"PROVIDER_RETRY_MAX" default:"2s"`
}

type Breaker struct {
	Interval time.Duration `envconfig:"BREAKER_INTERVAL" default:"30s"`
	Timeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"10s"`
	Failures uint32        `envconfig:"BREAKER_FAILURES" default:"5" validate:"gte=1"`
}

type Search struct {
	CitiesSource  string        `envconfig:"CITIES_SOURCE" default:"cities.json" validate:"required"`
	Limit         int           `envconfig:"SEARCH_LIMIT" default:"20" validate:"gte=1,lte=100"`
	DebounceDelay time.Duration `envconfig:"DEBOUNCE_DELAY" default:"250ms" validate:"gt=0"`
	NoticeTTL     time.Duration `envconfig:"NOTICE_TTL" default:"5s" validate:"gt=0"`
}

// Cache bounds of zero keep every coordinate lookup for the process lifetime.
type Cache struct {
	Backend       string        `envconfig:"CACHE_BACKEND" default:"memory" validate:"oneof=memory redis"`
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"0" validate:"gte=0"`
	MaxAge        time.Duration `envconfig:"CACHE_MAX_AGE" default:"0s" validate:"gte=0"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1m"`
}

type Redis struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"REDIS_TTL" default:"0s"`
}

type Geo struct {
	Mode     string   `envconfig:"GEO_MODE" default:"off" validate:"oneof=off static ip"`
	Lat      *float64 `envconfig:"GEO_LAT"`
	Lon      *float64 `envconfig:"GEO_LON"`
	IPAPIURL string   `envconfig:"GEO_IPAPI_URL" default:"http://ip-api.com/json/"`
}

type AppConfig struct {
	Provider Provider
	Breaker  Breaker
	Search   Search
	Cache    Cache
	Redis    Redis
	Geo      Geo

	PrefsPath  string `envconfig:"PREFS_PATH" default:"prefs.db"`
	PreferDark bool   `envconfig:"PREFER_DARK" default:"false"`

	// Timezone sets forecast day boundaries. Empty means the process local zone.
	Timezone string `envconfig:"TIMEZONE"`

	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogFile  string `envconfig:"LOG_FILE"`
}

var validate = validator.New()

// LoadDotEnv loads .env from the working directory. A missing file is not an
// error worth stopping for; callers usually just log it.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.Geo.Mode == "static" {
		if _, _, err := cfg.Geo.StaticCoords(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Location resolves Timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return loc, nil
}

// StaticCoords returns the configured position for GEO_MODE=static.
func (g Geo) StaticCoords() (float64, float64, error) {
	if g.Lat == nil || g.Lon == nil {
		return 0, 0, errors.New("GEO_LAT and GEO_LON must both be set")
	}
	if *g.Lat < -90 || *g.Lat > 90 || *g.Lon < -180 || *g.Lon > 180 {
		return 0, 0, fmt.Errorf("GEO_LAT/GEO_LON out of range: %v,%v", *g.Lat, *g.Lon)
	}
	return *g.Lat, *g.Lon, nil
}

func (c *AppConfig) Address() string {
	return ":" + c.Port
}
