package analysis

import (
	"context"
	"time"

	"github.com/tphakala/batrec/internal/analysis/detector"
	"github.com/tphakala/batrec/internal/analysis/processor"
	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/audiocore/export"
	"github.com/tphakala/batrec/internal/audiocore/sources/m500"
	"github.com/tphakala/batrec/internal/audiocore/sources/malgo"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

// DeviceProbe finds capture hardware. The zero value uses the real probes.
type DeviceProbe struct {
	M500Available func() bool
	ProbeCard     func(names []string) (malgo.DeviceInfo, error)
	// OpenM500 overrides the M500 transport, mainly for tests.
	OpenM500 m500.Opener
}

func (p DeviceProbe) withDefaults() DeviceProbe {
	if p.M500Available == nil {
		p.M500Available = m500.Available
	}
	if p.ProbeCard == nil {
		p.ProbeCard = malgo.Probe
	}
	return p
}

// StageDeps are the long-lived collaborators shared by all runs.
type StageDeps struct {
	Probe   DeviceProbe
	Trigger *detector.Trigger
	Metrics audiocore.Metrics
	// RequestRestart is handed to the processor.
	RequestRestart func(reason string)
	OnClip         func(export.ClipEvent)
	// Storage overrides the storage selector built from settings.
	Storage  export.TargetResolver
	Location *time.Location
	Logger   logger.Logger
}

// SelectSource resolves the capture source for s. An attached M500 wins
// when the source is auto or m500; otherwise the card names are tried.
func SelectSource(s *conf.Settings, probe DeviceProbe, metrics audiocore.Metrics, log logger.Logger) (audiocore.Source, int, error) {
	probe = probe.withDefaults()
	source := s.Recorder.Source

	if source == conf.SourceAuto || source == conf.SourceM500 {
		if probe.M500Available() {
			src := m500.NewSource(m500.Config{Open: probe.OpenM500, Metrics: metrics, Logger: log})
			return src, m500.SampleRate, nil
		}
		if source == conf.SourceM500 {
			return nil, 0, audiocore.NoDeviceError(m500.DeviceName)
		}
	}

	dev, err := probe.ProbeCard(s.Recorder.DeviceNames)
	if err != nil {
		log.Warn("no capture card found",
			logger.Any("device_names", s.Recorder.DeviceNames),
			logger.Error(err))
		tried := append([]string{m500.DeviceName}, s.Recorder.DeviceNames...)
		if source == conf.SourceCard {
			tried = s.Recorder.DeviceNames
		}
		return nil, 0, audiocore.NoDeviceError(tried...)
	}
	src := malgo.NewCardSource(malgo.Config{
		Device:     dev,
		SampleRate: s.Recorder.SampleRate,
		Metrics:    metrics,
		Logger:     log,
	})
	return src, s.Recorder.SampleRate, nil
}

// NewStageFactory returns a factory that builds every run from the settings
// current at start time.
func NewStageFactory(settings func() *conf.Settings, deps StageDeps) audiocore.StageFactory {
	if deps.Metrics == nil {
		deps.Metrics = audiocore.NopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = GetLogger()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return func(ctx context.Context, run audiocore.RunInfo) (*audiocore.Stages, error) {
		s := settings().Clone()
		log := deps.Logger.With(logger.String("run_id", run.ID))

		src, rate, err := SelectSource(s, deps.Probe, deps.Metrics, audiocore.GetLogger())
		if err != nil {
			return nil, err
		}

		det := detector.FromSettings(s, rate, deps.Trigger)
		proc := processor.New(processor.Config{
			WindowBlocks:   s.Recorder.WindowBlocks(),
			PreRollBlocks:  conf.PreRollBlocks(s.Recorder.PreRoll),
			DriftThreshold: s.Recorder.DriftThreshold,
			Watchdog:       s.Recorder.Watchdog,
			Detector:       det,
			RequestRestart: deps.RequestRestart,
			Metrics:        deps.Metrics,
		})

		storage := deps.Storage
		if storage == nil {
			storage = export.NewStorageSelector(export.PolicyFromSettings(&s.Output), nil)
		}
		sink := export.NewSink(export.SinkConfig{
			Settings:   s,
			SampleRate: rate,
			Storage:    storage,
			Location:   deps.Location,
			OnClip:     deps.OnClip,
			Metrics:    deps.Metrics,
		})

		log.Info("stages built",
			logger.String("source", src.Name()),
			logger.Int("sample_rate", rate),
			logger.String("detector_mode", det.Mode().String()),
			logger.Int("window_blocks", s.Recorder.WindowBlocks()))
		return &audiocore.Stages{Source: src, Processor: proc, Sink: sink}, nil
	}
}
