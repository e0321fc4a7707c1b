package cities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/muscab101/weather-app/internal/common"
)

// DefaultLimit caps the number of suggestions returned by Search.
const DefaultLimit = 20

var (
	// ErrLoad is returned when the city list is unreachable or malformed.
	ErrLoad = errors.New("failed to load city data")
	// ErrAlreadyLoaded is returned by a second Load on the same index.
	ErrAlreadyLoaded = errors.New("city index already loaded")
)

// City is a known place with its coordinates.
type City struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Source opens the city list document.
type Source func(ctx context.Context) (io.ReadCloser, error)

// FileSource reads the city list from a local JSON file.
func FileSource(path string) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// URLSource downloads the city list over HTTP.
func URLSource(client *http.Client, url string) Source {
	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	}
}

// SourceFor picks URLSource for http(s) locations and FileSource otherwise.
func SourceFor(client *http.Client, location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return URLSource(client, location)
	}
	return FileSource(location)
}

type rawCity struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Coord   *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}

type indexed struct {
	City
	lowerName string
}

// Index holds the static city list. It is filled once by Load and read-only
// afterwards; searches before that return nothing.
type Index struct {
	mu     sync.RWMutex
	cities []indexed
	loaded bool
	logger zerolog.Logger
}

// NewIndex creates an empty index.
func NewIndex(logger zerolog.Logger) *Index {
	return &Index{logger: logger.With().Str("component", "cities").Logger()}
}

// Load reads and decodes the city list from src. On failure the index stays
// empty and the error wraps ErrLoad.
func (x *Index) Load(ctx context.Context, src Source) error {
	x.mu.RLock()
	loaded := x.loaded
	x.mu.RUnlock()
	if loaded {
		return ErrAlreadyLoaded
	}

	rc, err := src(ctx)
	if err != nil {
		x.logger.Error().Ctx(ctx).Err(err).Msg("city source unreachable")
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer rc.Close()

	var raw []rawCity
	if err := json.NewDecoder(rc).DecodeContext(ctx, &raw); err != nil {
		x.logger.Error().Ctx(ctx).Err(err).Msg("city source malformed")
		return fmt.Errorf("%w: decode: %w", ErrLoad, err)
	}

	list := make([]indexed, 0, len(raw))
	for i, r := range raw {
		if r.Coord == nil {
			return fmt.Errorf("%w: entry %d (%q) has no coord", ErrLoad, i, r.Name)
		}
		list = append(list, indexed{
			City: City{
				Name:    r.Name,
				Country: r.Country,
				Lat:     r.Coord.Lat,
				Lon:     r.Coord.Lon,
			},
			lowerName: strings.ToLower(r.Name),
		})
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.loaded {
		return ErrAlreadyLoaded
	}
	x.cities = list
	x.loaded = true

	x.logger.Info().Ctx(ctx).Int("cities", len(list)).Msg("city index loaded")
	return nil
}

// Search returns cities whose name starts with prefix, ignoring case, in the
// order of the source list. A blank prefix matches nothing. limit <= 0 means
// DefaultLimit.
func (x *Index) Search(prefix string, limit int) []City {
	q := common.NormalizeQuery(prefix)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []City
	for _, c := range x.cities {
		if strings.HasPrefix(c.lowerName, q) {
			out = append(out, c.City)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Len returns the number of loaded cities.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.cities)
}

// Loaded reports whether Load has completed successfully.
func (x *Index) Loaded() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.loaded
}
