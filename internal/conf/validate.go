package conf

import (
	"fmt"
	"slices"

	"github.com/tphakala/batrec/internal/errors"
)

var validRecModes = []RecMode{
	RecModeOff, RecModeOn, RecModeAuto, RecModeManual, RecModeSchedulerOn, RecModeSchedulerAuto,
}

// ValidateSettings checks all settings and returns every problem found, joined.
func ValidateSettings(s *Settings) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	r := &s.Recorder
	if !slices.Contains(validRecModes, r.Mode) {
		add("recorder.mode: unknown mode %q", r.Mode)
	}
	switch r.Source {
	case SourceAuto, SourceM500, SourceCard:
	default:
		add("recorder.source: must be auto, m500 or card, got %q", r.Source)
	}
	if r.SampleRate < 8000 || r.SampleRate > 1_000_000 {
		add("recorder.samplerate: %d out of range", r.SampleRate)
	}
	if r.ClipLength < 1 || r.ClipLength > 600 {
		add("recorder.cliplength: %d s out of range 1-600", r.ClipLength)
	}
	// Pre-roll is counted in half-second blocks and must leave at least one
	// post-trigger block in the window.
	if blocks := PreRollBlocks(r.PreRoll); blocks < 1 || blocks > r.ClipLength*BlocksPerSecond-1 {
		add("recorder.preroll: %.1f s must be at least 0.5 s and shorter than the clip", r.PreRoll)
	}
	if r.QueueSize < 1 {
		add("recorder.queuesize: must be positive")
	}
	if r.DriftThreshold <= 0 {
		add("recorder.driftthreshold: must be positive")
	}
	if r.Watchdog <= 0 {
		add("recorder.watchdog: must be positive")
	}
	if r.RestartDelay < 0 {
		add("recorder.restartdelay: must not be negative")
	}

	d := &s.Detection
	switch d.Algorithm {
	case AlgorithmNone, AlgorithmSimple, AlgorithmManual:
	default:
		add("detection.algorithm: must be none, simple or manual, got %q", d.Algorithm)
	}
	if d.Sensitivity > 0 || d.Sensitivity < -150 {
		add("detection.sensitivity: %.1f dBFS out of range -150..0", d.Sensitivity)
	}
	if d.MinFreq < 0 || d.MinFreq > 250 {
		add("detection.minfreq: %.1f kHz out of range", d.MinFreq)
	}

	o := &s.Output
	if o.Prefix == "" {
		add("output.prefix: must not be empty")
	}
	if o.RecType != RecTypeFS && o.RecType != RecTypeTE {
		add("output.rectype: must be FS or TE, got %q", o.RecType)
	}
	if o.RemovableMinFree < 0 || o.InternalMinFree < 0 {
		add("output: free space floors must not be negative")
	}

	if s.Location.Latitude < -90 || s.Location.Latitude > 90 {
		add("location.latitude: %f out of range", s.Location.Latitude)
	}
	if s.Location.Longitude < -180 || s.Location.Longitude > 180 {
		add("location.longitude: %f out of range", s.Location.Longitude)
	}

	if s.Scheduler.Interval <= 0 {
		add("scheduler.interval: must be positive")
	}
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		add("mqtt.broker: required when mqtt is enabled")
	}
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		add("notification.urls: required when notifications are enabled")
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Category(errors.CategoryValidation).
		Component("conf").
		Build()
}
