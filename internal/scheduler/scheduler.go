package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-assistant/internal/observability"
	"github.com/i474232898/weather-assistant/internal/weather"
)

// WeatherRefresher fetches and records the current weather for a location.
type WeatherRefresher interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
}

// SnapshotPruner drops expired weather history.
type SnapshotPruner interface {
	Prune() int
}

// SessionCleaner deletes sessions idle for longer than ttl.
type SessionCleaner interface {
	CleanupIdle(ctx context.Context, ttl time.Duration) (int, error)
}

type Config struct {
	Locations     []weather.Location
	FetchInterval time.Duration

	// SessionIdleTTL of 0 disables session cleanup.
	SessionIdleTTL  time.Duration
	CleanupInterval time.Duration
}

// Scheduler runs the periodic background jobs: keeping tracked locations warm and
// removing idle chat sessions.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	weather   WeatherRefresher
	pruner    SnapshotPruner
	sessions  SessionCleaner
}

// New creates a new Scheduler. pruner and sessions may be nil.
func New(cfg Config, refresher WeatherRefresher, pruner SnapshotPruner, sessions SessionCleaner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cfg:       cfg,
		weather:   refresher,
		pruner:    pruner,
		sessions:  sessions,
	}
}

// Start schedules the jobs that have something to do and starts the scheduler.
func (s *Scheduler) Start() error {
	log := observability.Logger()
	jobs := 0

	if len(s.cfg.Locations) == 0 || s.weather == nil {
		log.Info().Msg("scheduler: no locations configured; weather refresh disabled")
	} else {
		interval := s.cfg.FetchInterval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		if _, err := s.scheduler.Every(interval).Do(s.refreshWeather); err != nil {
			return err
		}
		jobs++
	}

	if s.cfg.SessionIdleTTL <= 0 || s.sessions == nil {
		log.Info().Msg("scheduler: session cleanup disabled")
	} else {
		interval := s.cfg.CleanupInterval
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		if _, err := s.scheduler.Every(interval).Do(s.cleanupSessions); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) refreshWeather() {
	log := observability.Logger()
	log.Debug().Int("locations", len(s.cfg.Locations)).Msg("scheduler: running weather fetch job")

	var wg sync.WaitGroup
	for _, loc := range s.cfg.Locations {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := s.weather.FetchAndStore(ctx, loc); err != nil {
				log.Warn().Err(err).Str("location", loc.Key()).Msg("scheduler: fetch failed")
			}
		}()
	}
	wg.Wait()

	pruned := 0
	if s.pruner != nil {
		pruned = s.pruner.Prune()
	}
	log.Debug().Int("pruned", pruned).Msg("scheduler: completed weather fetch job")
}

func (s *Scheduler) cleanupSessions() {
	log := observability.Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.sessions.CleanupIdle(ctx, s.cfg.SessionIdleTTL)
	if err != nil {
		log.Warn().Err(err).Msg("scheduler: session cleanup failed")
		return
	}
	if n > 0 {
		log.Info().Int("deleted", n).Dur("idle_ttl", s.cfg.SessionIdleTTL).Msg("scheduler: removed idle sessions")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
