package scheduler

import (
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// Scheduler periodically sweeps a bounded cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cache     Sweeper
	interval  time.Duration
	logger    zerolog.Logger
}

// New creates a new Scheduler.
func New(cache Sweeper, interval time.Duration, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cache:     cache,
		interval:  interval,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cache == nil {
		return errors.New("scheduler: no cache to sweep")
	}

	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", interval).Msg("cache sweep scheduled")
	return nil
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce() {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
