// Package detector decides whether an audio block contains a bat call.
//
// The simple algorithm slides a Hann window over the block, takes the real
// FFT of each frame, ignores everything below the high-pass cutoff and
// compares the strongest remaining bin against a dBFS threshold. A block only
// counts once a run of consecutive frames has been above the threshold.
package detector

import (
	"math"
	"math/cmplx"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/conf"
)

const (
	// WindowSize is the FFT frame length in samples.
	WindowSize = 2048
	// HopSize is the distance between successive frames.
	HopSize = 1000
	// MinConsecutive is the number of loud frames needed in a row.
	MinConsecutive = 3

	fullScale   = 32768.0
	floorValue  = 1e-9
	silenceDBFS = -500.0
)

// Mode selects how a block is classified.
type Mode int

const (
	// ModeAnalyze runs the FFT detector.
	ModeAnalyze Mode = iota
	// ModeAlways treats every block as a call, recording silence too.
	ModeAlways
	// ModeManual reports a call only when the operator trigger was fired.
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeAnalyze:
		return "analyze"
	case ModeAlways:
		return "always"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ModeFor resolves the detector mode from the recording settings.
// Continuous rec modes win over a manual trigger, which wins over the algorithm.
func ModeFor(s *conf.Settings) Mode {
	switch {
	case s.Recorder.Mode == conf.RecModeOn || s.Recorder.Mode == conf.RecModeSchedulerOn:
		return ModeAlways
	case s.ManualTriggered():
		return ModeManual
	case s.Detection.Algorithm == conf.AlgorithmNone:
		return ModeAlways
	default:
		return ModeAnalyze
	}
}

// Trigger is a one-shot operator trigger shared between the control surface
// and the detector. The zero value is unarmed.
type Trigger struct {
	armed atomic.Bool
}

// Fire arms the trigger for the next analysed block.
func (t *Trigger) Fire() {
	t.armed.Store(true)
}

// Armed reports whether the trigger is waiting to be consumed.
func (t *Trigger) Armed() bool {
	return t.armed.Load()
}

func (t *Trigger) take() bool {
	return t != nil && t.armed.Swap(false)
}

// Config configures a Detector.
type Config struct {
	Mode          Mode
	SampleRate    int
	MinFreqHz     float64
	ThresholdDBFS float64
}

// Detector classifies blocks. It keeps scratch buffers and must be used from
// a single goroutine.
type Detector struct {
	cfg       Config
	trigger   *Trigger
	window    []float64
	windowMax float64
	minBin    int

	fft    *fourier.FFT
	frame  []float64
	coeffs []complex128
}

// New creates a detector. trigger may be nil when manual mode is not used.
func New(cfg Config, trigger *Trigger) *Detector {
	w := make([]float64, WindowSize)
	for i := range w {
		w[i] = 1
	}
	w = window.Hann(w)

	var sum float64
	for _, v := range w {
		sum += v
	}

	minBin := 0
	if cfg.SampleRate > 0 {
		minBin = int(math.Ceil(cfg.MinFreqHz * WindowSize / float64(cfg.SampleRate)))
	}

	return &Detector{
		cfg:       cfg,
		trigger:   trigger,
		window:    w,
		windowMax: sum / 2,
		minBin:    max(minBin, 0),
		fft:       fourier.NewFFT(WindowSize),
		frame:     make([]float64, WindowSize),
		coeffs:    make([]complex128, WindowSize/2+1),
	}
}

// FromSettings creates a detector for a stream at sampleRate.
func FromSettings(s *conf.Settings, sampleRate int, trigger *Trigger) *Detector {
	return New(Config{
		Mode:          ModeFor(s),
		SampleRate:    sampleRate,
		MinFreqHz:     s.Detection.MinFreq * 1000,
		ThresholdDBFS: s.Detection.Sensitivity,
	}, trigger)
}

// Mode returns the configured mode.
func (d *Detector) Mode() Mode {
	return d.cfg.Mode
}

// Detect classifies one block. Overrides are checked before any analysis.
func (d *Detector) Detect(block *audiocore.AudioBlock) audiocore.DetectionResult {
	switch d.cfg.Mode {
	case ModeAlways:
		return audiocore.DetectionResult{CallPresent: true}
	case ModeManual:
		return audiocore.DetectionResult{CallPresent: d.trigger.take()}
	}
	if block == nil {
		return audiocore.DetectionResult{}
	}
	return d.analyze(block.Samples)
}

func (d *Detector) analyze(samples []int16) audiocore.DetectionResult {
	var (
		result      audiocore.DetectionResult
		consecutive int
	)
	for off := 0; off+WindowSize <= len(samples); off += HopSize {
		db, bin := d.framePeak(samples[off : off+WindowSize])
		if db <= d.cfg.ThresholdDBFS {
			consecutive = 0
			continue
		}
		consecutive++
		if consecutive < MinConsecutive {
			continue
		}
		result.CallPresent = true
		if result.Peak == nil || db > result.Peak.LevelDBFS {
			result.Peak = &audiocore.Peak{
				FrequencyHz: float64(bin) * float64(d.cfg.SampleRate) / WindowSize,
				LevelDBFS:   db,
			}
		}
	}
	return result
}

// framePeak returns the level in dBFS and the bin index of the strongest bin
// at or above the cutoff.
func (d *Detector) framePeak(frame []int16) (float64, int) {
	if d.windowMax <= 0 {
		return silenceDBFS, 0
	}
	for i, s := range frame {
		d.frame[i] = float64(s) / fullScale * d.window[i]
	}
	d.coeffs = d.fft.Coefficients(d.coeffs, d.frame)

	peak, peakBin := floorValue, 0
	for k := d.minBin; k < len(d.coeffs); k++ {
		if m := cmplx.Abs(d.coeffs[k]); m > peak {
			peak, peakBin = m, k
		}
	}
	return 20 * math.Log10(peak/d.windowMax), peakBin
}
