// Package prefs persists user preferences in a local sqlite database.
package prefs

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

const (
	driver   = "sqlite"
	dialect  = "sqlite3"
	themeKey = "theme"
)

var ErrInvalidTheme = errors.New("invalid theme")

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Store reads and writes preference keys.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("preferences path cannot be empty")
	}

	db, err := sql.Open(driver, "file:"+path+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping preferences db: %w", err)
	}

	logger = logger.With().Str("component", "prefs").Logger()
	if err := migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate preferences db: %w", err)
	}

	return &Store{db: db, log: logger}, nil
}

func migrate(db *sql.DB, logger zerolog.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		s.log.Error().Err(err).Ctx(ctx).Str("key", key).Msg("failed to read preference")
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		s.log.Error().Err(err).Ctx(ctx).Str("key", key).Msg("failed to write preference")
		return err
	}
	s.log.Debug().Ctx(ctx).Str("key", key).Str("value", value).Msg("preference saved")
	return nil
}

// Theme returns the stored theme. With nothing stored, preferDark decides.
func (s *Store) Theme(ctx context.Context, preferDark bool) (Theme, error) {
	v, ok, err := s.get(ctx, themeKey)
	if err != nil {
		return "", err
	}
	if ok {
		if t := Theme(v); t == Light || t == Dark {
			return t, nil
		}
		s.log.Warn().Ctx(ctx).Str("value", v).Msg("ignoring unknown stored theme")
	}
	if preferDark {
		return Dark, nil
	}
	return Light, nil
}

func (s *Store) SetTheme(ctx context.Context, t Theme) error {
	if t != Light && t != Dark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	return s.set(ctx, themeKey, string(t))
}

// ToggleTheme flips the current theme, persists it and returns it.
func (s *Store) ToggleTheme(ctx context.Context, preferDark bool) (Theme, error) {
	cur, err := s.Theme(ctx, preferDark)
	if err != nil {
		return "", err
	}
	next := Dark
	if cur == Dark {
		next = Light
	}
	if err := s.SetTheme(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

type gooseLogger struct {
	l zerolog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error().Msgf(format, v...)
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Debug().Msgf(format, v...)
}
