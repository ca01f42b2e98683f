package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Recorder = RecorderSettings{
		Mode:           RecModeAuto,
		Source:         SourceAuto,
		SampleRate:     384000,
		ClipLength:     6,
		PreRoll:        1,
		QueueSize:      1200,
		DriftThreshold: 10 * time.Second,
		Watchdog:       30 * time.Second,
		RestartDelay:   time.Second,
	}
	s.Detection = DetectionSettings{Algorithm: AlgorithmSimple, Sensitivity: -50, MinFreq: 15}
	s.Output = OutputSettings{Prefix: "wurb", RecType: RecTypeFS, RemovableMinFree: 20, InternalMinFree: 500}
	s.Scheduler.Interval = 10 * time.Second
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"preroll zero", func(s *Settings) { s.Recorder.PreRoll = 0 }, "recorder.preroll"},
		{"preroll fills window", func(s *Settings) { s.Recorder.PreRoll = 6 }, "recorder.preroll"},
		{"preroll max", func(s *Settings) { s.Recorder.PreRoll = 5.5 }, ""},
		{"clip too short", func(s *Settings) { s.Recorder.ClipLength = 0 }, "recorder.cliplength"},
		{"bad source", func(s *Settings) { s.Recorder.Source = "usb" }, "recorder.source"},
		{"positive sensitivity", func(s *Settings) { s.Detection.Sensitivity = 3 }, "detection.sensitivity"},
		{"bad rectype", func(s *Settings) { s.Output.RecType = "XX" }, "output.rectype"},
		{"empty prefix", func(s *Settings) { s.Output.Prefix = "" }, "output.prefix"},
		{"longitude", func(s *Settings) { s.Location.Longitude = -181 }, "location.longitude"},
		{"mqtt without broker", func(s *Settings) { s.MQTT.Enabled = true }, "mqtt.broker"},
		{"notify without urls", func(s *Settings) { s.Notification.Enabled = true }, "notification.urls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRecordingHelpers(t *testing.T) {
	t.Parallel()

	s := validSettings()
	assert.Equal(t, 12, s.Recorder.WindowBlocks())
	assert.Equal(t, 2, PreRollBlocks(s.Recorder.PreRoll))
	assert.False(t, s.AlwaysRecord())
	assert.False(t, s.ManualTriggered())

	s.Recorder.Mode = RecModeSchedulerOn
	assert.True(t, s.AlwaysRecord())

	s.Recorder.Mode = RecModeAuto
	s.Detection.Algorithm = AlgorithmNone
	assert.True(t, s.AlwaysRecord())

	s.Recorder.Mode = RecModeManual
	assert.True(t, s.ManualTriggered())
	assert.False(t, s.AlwaysRecord())
}
