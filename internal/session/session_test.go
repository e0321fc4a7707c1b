package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/muscab101/weather-app/internal/cities"
	"github.com/muscab101/weather-app/internal/debounce"
	"github.com/muscab101/weather-app/internal/geo"
	"github.com/muscab101/weather-app/internal/weather"
)

const citiesJSON = `[
  {"name": "Paris", "country": "FR", "coord": {"lat": 48.85, "lon": 2.35}},
  {"name": "Lviv", "country": "UA", "coord": {"lat": 49.84, "lon": 24.03}},
  {"name": "Parma", "country": "IT", "coord": {"lat": 44.8, "lon": 10.33}}
]`

func source(s string) cities.Source {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchByCoords(ctx context.Context, lat, lon float64) (weather.Snapshot, error) {
	args := m.Called(ctx, lat, lon)
	return args.Get(0).(weather.Snapshot), args.Error(1)
}

func (m *mockFetcher) FetchByCity(ctx context.Context, name string) (weather.Snapshot, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(weather.Snapshot), args.Error(1)
}

type fixture struct {
	clock   *debounce.ManualClock
	fetcher *mockFetcher
	session *Session

	mu        sync.Mutex
	published [][]cities.City
}

func newFixture(t *testing.T, locator geo.Locator) *fixture {
	t.Helper()
	f := &fixture{
		clock:   debounce.NewManualClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)),
		fetcher: &mockFetcher{},
	}
	f.session = New(cities.NewIndex(zerolog.Nop()), f.fetcher, Options{
		Clock:   f.clock,
		Locator: locator,
		OnSuggestions: func(cs []cities.City) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.published = append(f.published, cs)
		},
	}, zerolog.Nop())
	t.Cleanup(f.session.Close)
	return f
}

func (f *fixture) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func snapshot(name string) weather.Snapshot {
	return weather.Snapshot{
		Current:  weather.CurrentConditions{Name: name, Temperature: 20},
		Forecast: []weather.DaySummary{},
	}
}

func TestOnInput_DebouncedSuggestions(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.LoadCities(context.Background(), source(citiesJSON)))

	f.session.OnInput("P")
	f.clock.Advance(100 * time.Millisecond)
	f.session.OnInput("Pa")
	f.clock.Advance(100 * time.Millisecond)
	f.session.OnInput(" Par ")
	assert.Equal(t, 0, f.publishCount())

	f.clock.Advance(debounce.DefaultDelay)
	require.Equal(t, 1, f.publishCount())

	got := f.session.Suggestions()
	require.Len(t, got, 2)
	assert.Equal(t, "Paris", got[0].Name)
	assert.Equal(t, "Parma", got[1].Name)

	f.session.OnInput("Xyz")
	f.clock.Advance(debounce.DefaultDelay)
	assert.Empty(t, f.session.Suggestions())
}

func TestOnInput_BlankClearsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.LoadCities(context.Background(), source(citiesJSON)))

	f.session.OnInput("Lv")
	f.clock.Advance(debounce.DefaultDelay)
	require.Len(t, f.session.Suggestions(), 1)

	f.session.OnInput("Par")
	f.session.OnInput("   ")
	assert.Empty(t, f.session.Suggestions())
	assert.Equal(t, 2, f.publishCount())

	f.clock.Advance(time.Second)
	assert.Empty(t, f.session.Suggestions(), "pending search must not fire after blank input")
	assert.Equal(t, 2, f.publishCount())
}

func TestLoadCities_FailureRaisesNotice(t *testing.T) {
	f := newFixture(t, nil)

	err := f.session.LoadCities(context.Background(), source(`{broken`))
	require.ErrorIs(t, err, cities.ErrLoad)

	n, ok := f.session.Notice()
	require.True(t, ok)
	assert.Equal(t, KindLoad, n.Kind)
	assert.Equal(t, "Failed to load city data. Please refresh the page.", n.Message)

	f.session.OnInput("Par")
	f.clock.Advance(debounce.DefaultDelay)
	assert.Empty(t, f.session.Suggestions())
}

func TestLookupCoords_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("FetchByCoords", mock.Anything, 48.85, 2.35).Return(snapshot("Paris"), nil).Once()

	assert.Equal(t, Idle, f.session.State())

	snap, err := f.session.LookupCoords(context.Background(), 48.85, 2.35)
	require.NoError(t, err)
	assert.Equal(t, "Paris", snap.Current.Name)
	assert.Equal(t, Success, f.session.State())

	res, ok := f.session.Result()
	require.True(t, ok)
	assert.Equal(t, snap, res.Snapshot)
	assert.Equal(t, f.clock.Now(), res.UpdatedAt)

	_, ok = f.session.Notice()
	assert.False(t, ok)
	f.fetcher.AssertExpectations(t)
}

func TestLookup_FailureNoticeExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("FetchByCity", mock.Anything, "Xyz").
		Return(weather.Snapshot{}, fmt.Errorf("current conditions: %w", weather.ErrNotFound)).Once()

	_, err := f.session.LookupCity(context.Background(), "Xyz")
	require.ErrorIs(t, err, weather.ErrNotFound)
	assert.Equal(t, Failed, f.session.State())
	assert.ErrorIs(t, f.session.Err(), weather.ErrNotFound)

	_, ok := f.session.Result()
	assert.False(t, ok)

	n, ok := f.session.Notice()
	require.True(t, ok)
	assert.Equal(t, KindNotFound, n.Kind)
	assert.Equal(t, "Unable to fetch weather for that city. Please try again.", n.Message)

	f.clock.Advance(DefaultNoticeTTL - time.Millisecond)
	_, ok = f.session.Notice()
	assert.True(t, ok)

	f.clock.Advance(time.Millisecond)
	_, ok = f.session.Notice()
	assert.False(t, ok)
}

func TestLookup_NewLookupClearsNotice(t *testing.T) {
	f := newFixture(t, nil)
	f.fetcher.On("FetchByCoords", mock.Anything, 1.0, 2.0).Return(weather.Snapshot{}, weather.ErrNetwork).Once()
	f.fetcher.On("FetchByCoords", mock.Anything, 1.0, 2.0).Return(snapshot("Somewhere"), nil).Once()

	_, err := f.session.LookupCoords(context.Background(), 1, 2)
	require.Error(t, err)
	n, ok := f.session.Notice()
	require.True(t, ok)
	assert.Equal(t, KindNetwork, n.Kind)
	assert.Equal(t, "Failed to fetch weather data. Please try again.", n.Message)

	_, err = f.session.LookupCoords(context.Background(), 1, 2)
	require.NoError(t, err)
	_, ok = f.session.Notice()
	assert.False(t, ok)
	assert.Equal(t, Success, f.session.State())
}

func TestLookupHere(t *testing.T) {
	t.Run("located", func(t *testing.T) {
		f := newFixture(t, geo.NewStatic(49.84, 24.03))
		f.fetcher.On("FetchByCoords", mock.Anything, 49.84, 24.03).Return(snapshot("Lviv"), nil).Once()

		snap, err := f.session.LookupHere(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Lviv", snap.Current.Name)
	})

	t.Run("unsupported", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.session.LookupHere(context.Background())
		require.ErrorIs(t, err, geo.ErrUnsupported)
		assert.Equal(t, Failed, f.session.State())

		n, ok := f.session.Notice()
		require.True(t, ok)
		assert.Equal(t, KindGeolocation, n.Kind)
		assert.Equal(t, "Geolocation not supported.", n.Message)
		f.fetcher.AssertNotCalled(t, "FetchByCoords", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("denied", func(t *testing.T) {
		f := newFixture(t, deniedLocator{})

		_, err := f.session.LookupHere(context.Background())
		require.ErrorIs(t, err, geo.ErrDenied)

		n, ok := f.session.Notice()
		require.True(t, ok)
		assert.Equal(t, "Location access denied. Please search for a city manually.", n.Message)
	})
}

func TestSelect_HidesSuggestionsAndLooksUpByName(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.LoadCities(context.Background(), source(citiesJSON)))
	f.fetcher.On("FetchByCity", mock.Anything, "Parma").Return(snapshot("Parma"), nil).Once()

	f.session.OnInput("Par")
	f.clock.Advance(debounce.DefaultDelay)
	picked := f.session.Suggestions()[1]

	snap, err := f.session.Select(context.Background(), picked)
	require.NoError(t, err)
	assert.Equal(t, "Parma", snap.Current.Name)
	assert.Empty(t, f.session.Suggestions())
}

func TestLookup_StaleResultDoesNotOverwriteState(t *testing.T) {
	f := newFixture(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.On("FetchByCoords", mock.Anything, 48.85, 2.35).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(snapshot("Paris"), nil).Once()
	f.fetcher.On("FetchByCity", mock.Anything, "Lviv").Return(snapshot("Lviv"), nil).Once()

	type outcome struct {
		snap weather.Snapshot
		err  error
	}
	slow := make(chan outcome, 1)
	go func() {
		snap, err := f.session.LookupCoords(context.Background(), 48.85, 2.35)
		slow <- outcome{snap, err}
	}()

	<-started
	fast, err := f.session.LookupCity(context.Background(), "Lviv")
	require.NoError(t, err)
	assert.Equal(t, "Lviv", fast.Current.Name)

	close(release)
	got := <-slow
	assert.ErrorIs(t, got.err, ErrStale)
	assert.Equal(t, "Paris", got.snap.Current.Name, "caller still receives its own result")

	res, ok := f.session.Result()
	require.True(t, ok)
	assert.Equal(t, "Lviv", res.Snapshot.Current.Name)
	assert.Equal(t, Success, f.session.State())
}

func TestLookup_StaleFailureKeepsNewerSuccess(t *testing.T) {
	f := newFixture(t, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	f.fetcher.On("FetchByCity", mock.Anything, "Paris").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(weather.Snapshot{}, weather.ErrProvider).Once()
	f.fetcher.On("FetchByCity", mock.Anything, "Lviv").Return(snapshot("Lviv"), nil).Once()

	errs := make(chan error, 1)
	go func() {
		_, err := f.session.LookupCity(context.Background(), "Paris")
		errs <- err
	}()

	<-started
	_, err := f.session.LookupCity(context.Background(), "Lviv")
	require.NoError(t, err)

	close(release)
	err = <-errs
	assert.ErrorIs(t, err, ErrStale)
	assert.ErrorIs(t, err, weather.ErrProvider)

	assert.Equal(t, Success, f.session.State())
	_, ok := f.session.Notice()
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", cities.ErrLoad), KindLoad},
		{fmt.Errorf("forecast: %w", weather.ErrNetwork), KindNetwork},
		{fmt.Errorf("current conditions: %w", weather.ErrProvider), KindProvider},
		{weather.ErrNotFound, KindNotFound},
		{geo.ErrDenied, KindGeolocation},
		{errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "failed", Failed.String())
}

type deniedLocator struct{}

func (deniedLocator) Locate(context.Context) (float64, float64, error) {
	return 0, 0, fmt.Errorf("%w: user said no", geo.ErrDenied)
}
