package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
)

const testRate = 384000

func sine(n int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}
	return out
}

func newAnalyzer() *Detector {
	return New(Config{
		Mode:          ModeAnalyze,
		SampleRate:    testRate,
		MinFreqHz:     15000,
		ThresholdDBFS: -50,
	}, nil)
}

func block(samples []int16) *audiocore.AudioBlock {
	return &audiocore.AudioBlock{Samples: samples, SampleRate: testRate}
}

func TestDetectCallAboveThreshold(t *testing.T) {
	t.Parallel()

	res := newAnalyzer().Detect(block(sine(testRate/2, 40000, 0.5)))

	require.True(t, res.CallPresent)
	require.NotNil(t, res.Peak)
	assert.InDelta(t, 40000, res.Peak.FrequencyHz, float64(testRate)/WindowSize)
	assert.InDelta(t, -6, res.Peak.LevelDBFS, 1.5)
}

func TestDetectIgnoresQuietAndLowFrequency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
	}{
		{"silence", make([]int16, testRate/2)},
		{"below cutoff", sine(testRate/2, 5000, 0.9)},
		{"below threshold", sine(testRate/2, 40000, 0.0005)},
		{"shorter than one frame", sine(WindowSize-1, 40000, 0.9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newAnalyzer().Detect(block(tt.samples))
			assert.False(t, res.CallPresent)
			assert.Nil(t, res.Peak)
		})
	}
}

func TestDetectNeedsConsecutiveFrames(t *testing.T) {
	t.Parallel()

	short := sine(WindowSize+(MinConsecutive-2)*HopSize, 40000, 0.5)
	assert.False(t, newAnalyzer().Detect(block(short)).CallPresent, "one frame short of the debounce count")

	exact := sine(WindowSize+(MinConsecutive-1)*HopSize, 40000, 0.5)
	assert.True(t, newAnalyzer().Detect(block(exact)).CallPresent)
}

func TestDetectQuietFrameResetsCount(t *testing.T) {
	t.Parallel()

	// Five frames: loud, loud, silent, loud, loud.
	samples := sine(4*HopSize+WindowSize, 40000, 0.5)
	for i := 2 * HopSize; i < 2*HopSize+WindowSize; i++ {
		samples[i] = 0
	}

	assert.False(t, newAnalyzer().Detect(block(samples)).CallPresent)
}

func TestOverridesSkipAnalysis(t *testing.T) {
	t.Parallel()

	always := New(Config{Mode: ModeAlways, SampleRate: testRate}, nil)
	res := always.Detect(block(make([]int16, testRate/2)))
	assert.True(t, res.CallPresent)
	assert.Nil(t, res.Peak)

	trigger := &Trigger{}
	manual := New(Config{Mode: ModeManual, SampleRate: testRate}, trigger)
	loud := block(sine(testRate/2, 40000, 0.9))

	assert.False(t, manual.Detect(loud).CallPresent, "manual mode ignores sound")
	trigger.Fire()
	assert.True(t, trigger.Armed())
	assert.True(t, manual.Detect(loud).CallPresent)
	assert.False(t, trigger.Armed())
	assert.False(t, manual.Detect(loud).CallPresent, "trigger is one-shot")
}

func TestModeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode      conf.RecMode
		algorithm string
		want      Mode
	}{
		{conf.RecModeAuto, conf.AlgorithmSimple, ModeAnalyze},
		{conf.RecModeSchedulerAuto, conf.AlgorithmSimple, ModeAnalyze},
		{conf.RecModeOn, conf.AlgorithmSimple, ModeAlways},
		{conf.RecModeSchedulerOn, conf.AlgorithmManual, ModeAlways},
		{conf.RecModeManual, conf.AlgorithmSimple, ModeManual},
		{conf.RecModeAuto, conf.AlgorithmManual, ModeManual},
		{conf.RecModeManual, conf.AlgorithmNone, ModeManual},
		{conf.RecModeAuto, conf.AlgorithmNone, ModeAlways},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.algorithm, func(t *testing.T) {
			s := &conf.Settings{}
			s.Recorder.Mode = tt.mode
			s.Detection.Algorithm = tt.algorithm
			assert.Equal(t, tt.want, ModeFor(s))
		})
	}
}
