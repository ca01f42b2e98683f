package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/audiocore/sources/m500"
	"github.com/tphakala/batrec/internal/audiocore/sources/malgo"
	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/errors"
)

func fakeProbe(m500Present bool, card string) DeviceProbe {
	return DeviceProbe{
		M500Available: func() bool { return m500Present },
		ProbeCard: func(names []string) (malgo.DeviceInfo, error) {
			if card == "" {
				return malgo.DeviceInfo{}, errors.NewStd("no matching capture device")
			}
			return malgo.DeviceInfo{Name: card, ID: "hw:1,0"}, nil
		},
	}
}

func TestSelectSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		source   string
		probe    DeviceProbe
		wantName string
		wantRate int
		wantErr  bool
	}{
		{"auto prefers m500", conf.SourceAuto, fakeProbe(true, "UltraMic"), m500.DeviceName, m500.SampleRate, false},
		{"auto falls back to card", conf.SourceAuto, fakeProbe(false, "UltraMic"), "UltraMic", 384000, false},
		{"auto without devices", conf.SourceAuto, fakeProbe(false, ""), "", 0, true},
		{"m500 missing", conf.SourceM500, fakeProbe(false, "UltraMic"), "", 0, true},
		{"card ignores m500", conf.SourceCard, fakeProbe(true, "Pettersson"), "Pettersson", 384000, false},
		{"card missing", conf.SourceCard, fakeProbe(true, ""), "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings()
			s.Recorder.Source = tt.source
			s.Recorder.DeviceNames = []string{"UltraMic", "Pettersson"}

			src, rate, err := SelectSource(s, tt.probe, nil, GetLogger())
			if tt.wantErr {
				require.ErrorIs(t, err, audiocore.ErrNoDevice)
				assert.True(t, errors.IsCategory(err, errors.CategoryHardware))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, src.Name())
			assert.Equal(t, tt.wantRate, rate)
		})
	}
}

type fixedTarget string

func (f fixedTarget) Target() (string, error) { return string(f), nil }

func TestStageFactoryBuildsFreshStages(t *testing.T) {
	t.Parallel()
	s := testSettings()
	factory := NewStageFactory(func() *conf.Settings { return s }, StageDeps{
		Probe:   fakeProbe(false, "UltraMic"),
		Storage: fixedTarget(t.TempDir()),
	})

	first, err := factory(context.Background(), audiocore.RunInfo{ID: "run-1"})
	require.NoError(t, err)
	second, err := factory(context.Background(), audiocore.RunInfo{ID: "run-2"})
	require.NoError(t, err)

	assert.Equal(t, "UltraMic", first.Source.Name())
	assert.NotSame(t, first.Processor, second.Processor)
	assert.NotSame(t, first.Sink, second.Sink)
}

func TestStageFactoryReportsMissingDevice(t *testing.T) {
	t.Parallel()
	factory := NewStageFactory(testSettings, StageDeps{Probe: fakeProbe(false, "")})

	stages, err := factory(context.Background(), audiocore.RunInfo{ID: "run-1"})
	assert.Nil(t, stages)
	require.ErrorIs(t, err, audiocore.ErrNoDevice)
}
