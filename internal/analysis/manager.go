// Package analysis owns the recording lifecycle: it starts, stops and
// restarts the capture pipeline, publishes status through watches and runs
// the rec-mode scheduler.
package analysis

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/batrec/internal/analysis/detector"
	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

// Status texts published on Manager.Status.
const (
	StatusMicOn    = "Microphone is on."
	StatusFinished = "Recording finished."
	StatusNoDevice = "Failed: No valid microphone."
)

// Restart reasons raised by the manager itself.
const (
	ReasonSettingsChanged = "settings_changed"
)

const defaultRestartDelay = time.Second

// FailedStatus formats the status for a start failure.
func FailedStatus(reason string) string {
	return "Failed: " + reason
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Settings *conf.Settings
	// Factory overrides the stage factory built from Deps.
	Factory audiocore.StageFactory
	// Deps is used for the default factory. Trigger, RequestRestart and
	// Metrics are filled in by the manager.
	Deps    StageDeps
	Metrics audiocore.Metrics
	// OnRestart is called before every restart the manager performs.
	OnRestart func(reason string)
	Logger    logger.Logger
}

// Manager controls one pipeline. Start, stop and restart are serialized;
// restart requests that arrive while one is pending collapse into it.
type Manager struct {
	cfg      ManagerConfig
	log      logger.Logger
	pipeline *audiocore.Pipeline
	trigger  *detector.Trigger

	Status   *Watch[string]
	State    *Watch[audiocore.StreamState]
	Location *Watch[conf.LocationSettings]
	Settings *Watch[*conf.Settings]

	opMu      sync.Mutex
	wanted    bool         // recording requested by StartRec and not yet stopped
	activeRun atomic.Value // string, run that reached Running and was not stopped
	restartCh chan string
}

// NewManager creates an idle manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Metrics == nil {
		cfg.Metrics = audiocore.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	settings := cfg.Settings.Clone()

	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger,
		trigger:   &detector.Trigger{},
		Status:    NewWatch("", func(a, b string) bool { return a == b }),
		State:     NewWatch(audiocore.StateIdle, func(a, b audiocore.StreamState) bool { return a == b }),
		Location:  NewWatch(settings.Location, func(a, b conf.LocationSettings) bool { return a == b }),
		Settings:  NewWatch[*conf.Settings](settings, nil),
		restartCh: make(chan string, 1),
	}
	m.activeRun.Store("")

	factory := cfg.Factory
	if factory == nil {
		deps := cfg.Deps
		deps.Trigger = m.trigger
		deps.RequestRestart = m.RestartRec
		deps.Metrics = cfg.Metrics
		factory = NewStageFactory(m.Settings.Get, deps)
	}

	m.pipeline = audiocore.NewPipeline(audiocore.PipelineConfig{
		Factory:   factory,
		QueueSize: settings.Recorder.QueueSize,
		Observer:  m.observe,
	})
	return m
}

// Run processes restart requests until ctx is cancelled, then stops recording.
func (m *Manager) Run(ctx context.Context) error {
	defer m.StopRec()
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-m.restartCh:
			m.restart(ctx, reason)
		}
	}
}

// StartRec resolves the device and starts the pipeline. ctx bounds the run.
// Starting while a run is active is a no-op.
func (m *Manager) StartRec(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.wanted = true
	return m.startLocked(ctx)
}

// StopRec stops the pipeline immediately, waits for it and clears the status.
func (m *Manager) StopRec() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.wanted = false
	m.stopLocked()
	m.Status.Set("")
}

// RestartRec requests an asynchronous restart. It never blocks.
func (m *Manager) RestartRec(reason string) {
	select {
	case m.restartCh <- reason:
		m.log.Info("restart requested", logger.String("reason", reason))
	default:
		m.log.Debug("restart already pending", logger.String("reason", reason))
	}
}

// ManualTrigger arms the one-shot trigger used in manual mode.
func (m *Manager) ManualTrigger() {
	m.trigger.Fire()
	m.log.Info("manual trigger armed")
}

// IsRunning reports whether a run is active.
func (m *Manager) IsRunning() bool {
	return m.pipeline.State().Active()
}

// RunID returns the ID of the current or last run.
func (m *Manager) RunID() string {
	return m.pipeline.RunID()
}

// Flush discards queued audio and any partial clip of the current run.
func (m *Manager) Flush() {
	m.pipeline.Flush()
}

// UpdateSettings validates and publishes new settings. A running pipeline is
// restarted when a setting it uses has changed.
func (m *Manager) UpdateSettings(s *conf.Settings) error {
	if err := conf.ValidateSettings(s); err != nil {
		return err
	}
	next := s.Clone()
	prev := m.Settings.Get()
	m.Settings.Set(next)
	m.Location.Set(next.Location)

	if m.IsRunning() && affectsRun(prev, next) {
		m.RestartRec(ReasonSettingsChanged)
	}
	return nil
}

func affectsRun(a, b *conf.Settings) bool {
	return !reflect.DeepEqual(a.Recorder, b.Recorder) ||
		!reflect.DeepEqual(a.Detection, b.Detection) ||
		a.Output != b.Output ||
		a.Location != b.Location
}

func (m *Manager) startLocked(ctx context.Context) error {
	if m.pipeline.State().Active() {
		return nil
	}
	if err := m.pipeline.Start(ctx); err != nil {
		status := FailedStatus(err.Error())
		if errors.Is(err, audiocore.ErrNoDevice) {
			status = StatusNoDevice
		}
		m.Status.Set(status)
		m.log.Warn("recording not started", logger.String("status", status), logger.Error(err))
		return err
	}
	m.Status.Set(StatusMicOn)
	return nil
}

func (m *Manager) stopLocked() {
	m.activeRun.Store("")
	m.pipeline.Stop(true)
	if err := m.pipeline.Wait(); err != nil {
		m.log.Debug("run ended with error", logger.Error(err))
	}
}

func (m *Manager) restart(ctx context.Context, reason string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if !m.wanted {
		m.log.Info("restart skipped, recording is stopped", logger.String("reason", reason))
		return
	}
	if m.cfg.OnRestart != nil {
		m.cfg.OnRestart(reason)
	}
	m.log.Info("restarting recording", logger.String("reason", reason))
	m.stopLocked()

	delay := m.Settings.Get().Recorder.RestartDelay
	if delay <= 0 {
		delay = defaultRestartDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	// Requests raised by the run just stopped are satisfied by this restart.
	select {
	case <-m.restartCh:
	default:
	}
	if err := m.startLocked(ctx); err != nil {
		m.log.Error("restart failed", logger.Error(err))
	}
}

// observe runs on pipeline state changes.
func (m *Manager) observe(runID string, state audiocore.StreamState, err error) {
	m.cfg.Metrics.PipelineState(state)
	m.State.Set(state)

	switch state {
	case audiocore.StateRunning:
		m.activeRun.Store(runID)
	case audiocore.StateStopped:
		// A run that ended without StopRec lost its device or source.
		if runID != "" && m.activeRun.CompareAndSwap(runID, "") {
			m.Status.Set(StatusFinished)
			if err != nil {
				m.log.Warn("recording finished unexpectedly", logger.Error(err))
			}
		}
	}
}
