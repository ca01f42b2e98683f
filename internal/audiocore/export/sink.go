// Package export is the last pipeline stage. It turns tagged clips from the
// stream processor into WAV files on the best available storage, named after
// the recording time, position and type.
package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

// SnapshotName is the settings copy written next to finished clips.
const SnapshotName = "batrec_settings.yaml"

// Clip failure reasons reported to metrics.
const (
	FailStorage = "storage"
	FailWrite   = "write"
	FailAborted = "aborted"
)

// TargetResolver returns the directory for the next clip.
type TargetResolver interface {
	Target() (string, error)
}

// Invalidator is implemented by resolvers that reuse their last decision.
// The sink calls it when the chosen directory could not be written.
type Invalidator interface {
	Invalidate()
}

// ClipEvent describes a finished clip.
type ClipEvent struct {
	Path   string
	Frames int
	// Rate is the sample rate in the WAV header.
	Rate int
	Peak *audiocore.Peak
}

// SinkConfig configures a Sink.
type SinkConfig struct {
	// Settings is the run's frozen configuration.
	Settings   *conf.Settings
	SampleRate int
	Storage    TargetResolver
	// Location is the time zone of file names. Defaults to time.Local.
	Location *time.Location
	// OnClip is called after a clip was closed completely.
	OnClip  func(ClipEvent)
	Metrics audiocore.Metrics
	Logger  logger.Logger
}

// Sink implements audiocore.Sink.
type Sink struct {
	cfg      SinkConfig
	log      logger.Logger
	recType  string
	outRate  int
	clip     *ClipWriter
	clipDir  string
	clipPeak *audiocore.Peak
}

// NewSink creates a sink for one run.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.Metrics == nil {
		cfg.Metrics = audiocore.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	recType := cfg.Settings.Output.RecType
	if recType == "" {
		recType = conf.RecTypeFS
	}
	return &Sink{
		cfg:     cfg,
		log:     cfg.Logger,
		recType: recType,
		outRate: OutputRate(recType, cfg.SampleRate),
	}
}

// Run writes clips until Terminate or cancellation. An open clip is closed
// as partial in both cases.
func (s *Sink) Run(ctx context.Context, in <-chan audiocore.Item) error {
	log := s.log.WithContext(ctx)
	for {
		select {
		case <-ctx.Done():
			s.abort(log)
			return nil
		case it, ok := <-in:
			if !ok {
				s.abort(log)
				return nil
			}
			switch it.Kind {
			case audiocore.ItemTerminate:
				s.abort(log)
				return nil
			case audiocore.ItemFlush:
				s.abort(log)
				if _, terminated := audiocore.DrainUntilTerminate(in); terminated {
					return nil
				}
			case audiocore.ItemData:
				s.handle(log, it)
			}
		}
	}
}

func (s *Sink) handle(log logger.Logger, it audiocore.Item) {
	if it.Block == nil {
		return
	}
	if it.NewFile {
		s.abort(log)
		s.open(log, it)
	}
	if s.clip == nil {
		return
	}
	if err := s.clip.Write(it.Block.Samples); err != nil {
		log.Error("failed to write clip", logger.Error(err))
		s.cfg.Metrics.ClipFailed(FailWrite)
		s.closePartial(log)
		s.invalidateTarget()
		return
	}
	if it.CloseFile {
		s.finish(log)
	}
}

func (s *Sink) open(log logger.Logger, it audiocore.Item) {
	dir, err := s.cfg.Storage.Target()
	if err != nil {
		log.Warn("no storage available, clip skipped", logger.Error(err))
		s.cfg.Metrics.StorageUnavailable()
		s.cfg.Metrics.ClipFailed(FailStorage)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("cannot create target directory",
			logger.String("dir", dir),
			logger.Error(err))
		s.cfg.Metrics.ClipFailed(FailStorage)
		s.invalidateTarget()
		return
	}

	settings := s.cfg.Settings
	name := FileName{
		Prefix:    settings.Output.Prefix,
		Time:      it.Block.DeviceTime.In(s.cfg.Location),
		Latitude:  settings.Location.Latitude,
		Longitude: settings.Location.Longitude,
		RecType:   RecTypeTag(s.recType, s.cfg.SampleRate),
		Peak:      it.Peak,
	}
	clip, err := CreateClip(filepath.Join(dir, name.String()), s.outRate)
	if err != nil {
		log.Error("cannot create clip", logger.Error(err))
		s.cfg.Metrics.ClipFailed(FailWrite)
		s.invalidateTarget()
		return
	}
	s.clip = clip
	s.clipDir = dir
	s.clipPeak = it.Peak
}

func (s *Sink) invalidateTarget() {
	if inv, ok := s.cfg.Storage.(Invalidator); ok {
		inv.Invalidate()
	}
}

// finish closes a complete clip and writes the settings snapshot beside it.
func (s *Sink) finish(log logger.Logger) {
	clip := s.clip
	s.clip = nil
	if err := clip.Close(); err != nil {
		log.Error("failed to close clip", logger.Error(err))
		s.cfg.Metrics.ClipFailed(FailWrite)
		return
	}

	if s.cfg.Settings.Output.Snapshot {
		if err := conf.WriteSnapshotFile(s.clipDir, SnapshotName, s.cfg.Settings); err != nil {
			log.Warn("failed to write settings snapshot", logger.Error(err))
		}
	}

	s.cfg.Metrics.ClipWritten(s.recType)
	log.Info("new sound file",
		logger.String("file", filepath.Base(clip.Path())),
		logger.String("dir", s.clipDir),
		logger.Duration("length", time.Duration(clip.Frames())*time.Second/time.Duration(s.outRate)))
	if s.cfg.OnClip != nil {
		s.cfg.OnClip(ClipEvent{Path: clip.Path(), Frames: clip.Frames(), Rate: s.outRate, Peak: s.clipPeak})
	}
}

// abort closes an open clip without the snapshot, leaving a partial file.
func (s *Sink) abort(log logger.Logger) {
	if s.clip == nil {
		return
	}
	s.cfg.Metrics.ClipFailed(FailAborted)
	s.closePartial(log)
}

func (s *Sink) closePartial(log logger.Logger) {
	clip := s.clip
	s.clip = nil
	if err := clip.Close(); err != nil {
		log.Warn("failed to close partial clip", logger.Error(err))
		return
	}
	log.Info("partial clip closed",
		logger.String("file", filepath.Base(clip.Path())),
		logger.Int("frames", clip.Frames()))
}

var _ audiocore.Sink = (*Sink)(nil)
