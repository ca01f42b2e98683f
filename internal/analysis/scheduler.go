package analysis

import (
	"context"
	"time"

	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

const defaultSchedulerInterval = 10 * time.Second

// Recorder is the part of Manager the scheduler drives.
type Recorder interface {
	StartRec(ctx context.Context) error
	StopRec()
	IsRunning() bool
}

// SunProvider answers night-time queries for a position.
type SunProvider interface {
	SetPosition(latitude, longitude float64)
	Position() (latitude, longitude float64)
	IsNight(t time.Time, startOffset, stopOffset time.Duration) (bool, error)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Recorder Recorder
	Sun      SunProvider
	Settings func() *conf.Settings
	Now      func() time.Time
	Logger   logger.Logger
}

// Scheduler starts and stops the recorder according to the rec mode.
type Scheduler struct {
	rec      Recorder
	sun      SunProvider
	settings func() *conf.Settings
	now      func() time.Time
	log      logger.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger().With(logger.String("component", "scheduler"))
	}
	return &Scheduler{
		rec:      cfg.Recorder,
		sun:      cfg.Sun,
		settings: cfg.Settings,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
}

// Run evaluates the schedule immediately and then on every interval until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.settings().Scheduler.Interval
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick brings the recorder in line with the current rec mode.
func (s *Scheduler) Tick(ctx context.Context) {
	settings := s.settings()
	want := s.ShouldRecord(settings, s.now())
	running := s.rec.IsRunning()

	switch {
	case want && !running:
		s.log.Debug("schedule starts recording", logger.String("mode", string(settings.Recorder.Mode)))
		if err := s.rec.StartRec(ctx); err != nil {
			s.log.Debug("scheduled start failed", logger.Error(err))
		}
	case !want && running:
		s.log.Info("schedule stops recording", logger.String("mode", string(settings.Recorder.Mode)))
		s.rec.StopRec()
	}
}

// ShouldRecord reports whether settings ask for recording at t.
func (s *Scheduler) ShouldRecord(settings *conf.Settings, t time.Time) bool {
	switch settings.Recorder.Mode {
	case conf.RecModeOn, conf.RecModeAuto, conf.RecModeManual:
		return true
	case conf.RecModeSchedulerOn, conf.RecModeSchedulerAuto:
		return s.isNight(settings, t)
	default:
		return false
	}
}

func (s *Scheduler) isNight(settings *conf.Settings, t time.Time) bool {
	if s.sun == nil {
		return false
	}
	loc := settings.Location
	if lat, lon := s.sun.Position(); lat != loc.Latitude || lon != loc.Longitude {
		s.sun.SetPosition(loc.Latitude, loc.Longitude)
	}
	night, err := s.sun.IsNight(t, settings.Scheduler.StartOffset, settings.Scheduler.StopOffset)
	if err != nil {
		// Polar day or night; astral cannot place sunset or sunrise.
		s.log.Warn("sun event calculation failed", logger.Error(err))
		return false
	}
	return night
}
