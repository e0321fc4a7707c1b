// Package session ties the city index, debounced search and weather lookups
// together for one user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/muscab101/weather-app/internal/cities"
	"github.com/muscab101/weather-app/internal/debounce"
	"github.com/muscab101/weather-app/internal/geo"
	"github.com/muscab101/weather-app/internal/weather"
)

// ErrStale is returned alongside the result of a lookup that finished after a
// newer one had started. The session state is left to the newer lookup.
var ErrStale = errors.New("lookup superseded by a newer request")

// State is the lifecycle of the current lookup.
type State int

const (
	Idle State = iota
	Loading
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CityIndex is the subset of *cities.Index a session uses.
type CityIndex interface {
	Load(ctx context.Context, src cities.Source) error
	Search(prefix string, limit int) []cities.City
}

// Fetcher is the subset of *weather.Service a session uses.
type Fetcher interface {
	FetchByCoords(ctx context.Context, lat, lon float64) (weather.Snapshot, error)
	FetchByCity(ctx context.Context, name string) (weather.Snapshot, error)
}

type Options struct {
	SearchLimit   int
	DebounceDelay time.Duration
	NoticeTTL     time.Duration
	Clock         debounce.Clock
	Locator       geo.Locator
	// OnSuggestions receives every published suggestion list, including
	// empty ones that should hide the list.
	OnSuggestions func([]cities.City)
}

// Result is the last successful lookup.
type Result struct {
	Snapshot  weather.Snapshot `json:"snapshot"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Session holds the state of one user. Methods are safe for concurrent use.
type Session struct {
	index     CityIndex
	weather   Fetcher
	locator   geo.Locator
	clock     debounce.Clock
	limit     int
	ttl       time.Duration
	onSuggest func([]cities.City)
	search    *debounce.Debouncer
	logger    zerolog.Logger

	mu          sync.Mutex
	suggestions []cities.City
	gen         uint64
	state       State
	result      Result
	lastErr     error
	notice      *Notice
}

func New(index CityIndex, fetcher Fetcher, opts Options, logger zerolog.Logger) *Session {
	if opts.Clock == nil {
		opts.Clock = debounce.SystemClock{}
	}
	if opts.Locator == nil {
		opts.Locator = geo.Unsupported{}
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = cities.DefaultLimit
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}

	s := &Session{
		index:     index,
		weather:   fetcher,
		locator:   opts.Locator,
		clock:     opts.Clock,
		limit:     opts.SearchLimit,
		ttl:       opts.NoticeTTL,
		onSuggest: opts.OnSuggestions,
		logger:    logger.With().Str("component", "session").Logger(),
	}
	s.search = debounce.New(opts.DebounceDelay, opts.Clock, s.runSearch)
	return s
}

// LoadCities populates the index. A failure is surfaced as a notice and
// leaves search returning no matches.
func (s *Session) LoadCities(ctx context.Context, src cities.Source) error {
	if err := s.index.Load(ctx, src); err != nil {
		s.logger.Error().Ctx(ctx).Err(err).Msg("city list load failed")
		s.mu.Lock()
		s.setNoticeLocked(err, false)
		s.mu.Unlock()
		return err
	}
	return nil
}

// OnInput feeds raw search box text. Blank input hides suggestions at once;
// anything else is searched after the debounce delay.
func (s *Session) OnInput(text string) {
	query := strings.TrimSpace(text)
	if query == "" {
		s.search.Cancel()
		s.publish(nil)
		return
	}
	s.search.Trigger(query)
}

func (s *Session) runSearch(query string) {
	matches := s.index.Search(query, s.limit)
	s.logger.Debug().Str("query", query).Int("matches", len(matches)).Msg("suggestions updated")
	s.publish(matches)
}

func (s *Session) publish(matches []cities.City) {
	s.mu.Lock()
	s.suggestions = matches
	s.mu.Unlock()

	if s.onSuggest != nil {
		s.onSuggest(matches)
	}
}

// Suggestions returns the latest published list.
func (s *Session) Suggestions() []cities.City {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cities.City(nil), s.suggestions...)
}

// DismissSuggestions hides the list without touching a pending search.
func (s *Session) DismissSuggestions() {
	s.publish(nil)
}

// Select looks up a suggested city by name, hiding the list first.
func (s *Session) Select(ctx context.Context, c cities.City) (weather.Snapshot, error) {
	s.search.Cancel()
	s.publish(nil)
	return s.LookupCity(ctx, c.Name)
}

func (s *Session) LookupCoords(ctx context.Context, lat, lon float64) (weather.Snapshot, error) {
	return s.lookup(ctx, false, func(ctx context.Context) (weather.Snapshot, error) {
		return s.weather.FetchByCoords(ctx, lat, lon)
	})
}

func (s *Session) LookupCity(ctx context.Context, name string) (weather.Snapshot, error) {
	return s.lookup(ctx, true, func(ctx context.Context) (weather.Snapshot, error) {
		return s.weather.FetchByCity(ctx, name)
	})
}

// LookupHere geolocates and then looks up the resulting coordinates.
func (s *Session) LookupHere(ctx context.Context) (weather.Snapshot, error) {
	return s.lookup(ctx, false, func(ctx context.Context) (weather.Snapshot, error) {
		lat, lon, err := s.locator.Locate(ctx)
		if err != nil {
			return weather.Snapshot{}, err
		}
		return s.weather.FetchByCoords(ctx, lat, lon)
	})
}

func (s *Session) lookup(
	ctx context.Context,
	byCity bool,
	fetch func(context.Context) (weather.Snapshot, error),
) (weather.Snapshot, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Loading
	s.result = Result{}
	s.lastErr = nil
	s.notice = nil
	s.mu.Unlock()

	snap, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug().
			Ctx(ctx).
			Uint64("generation", gen).
			Uint64("latest", s.gen).
			AnErr("lookup_error", err).
			Msg("discarding stale lookup")
		if err != nil {
			return weather.Snapshot{}, fmt.Errorf("%w: %w", ErrStale, err)
		}
		return snap, ErrStale
	}

	if err != nil {
		s.state = Failed
		s.lastErr = err
		s.setNoticeLocked(err, byCity)
		s.logger.Warn().Ctx(ctx).Err(err).Str("kind", string(Classify(err))).Msg("lookup failed")
		return weather.Snapshot{}, err
	}

	s.state = Success
	s.result = Result{Snapshot: snap, UpdatedAt: s.clock.Now()}
	return snap, nil
}

func (s *Session) setNoticeLocked(err error, byCity bool) {
	s.notice = &Notice{
		Kind:      Classify(err),
		Message:   Message(err, byCity),
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
}

// State returns the lifecycle state of the latest lookup.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the latest lookup's result while the session is in Success.
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == Success
}

// Err returns the error of the latest lookup while the session is in Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Notice returns the current notice unless it has expired.
func (s *Session) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notice == nil {
		return Notice{}, false
	}
	if !s.clock.Now().Before(s.notice.ExpiresAt) {
		s.notice = nil
		return Notice{}, false
	}
	return *s.notice, true
}

// Close cancels any pending search.
func (s *Session) Close() {
	s.search.Cancel()
}
