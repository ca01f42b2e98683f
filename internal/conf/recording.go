package conf

import "math"

// BlocksPerSecond is the number of audio blocks per second of audio.
// Every capture source delivers half-second blocks.
const BlocksPerSecond = 2

// WindowBlocks returns the number of blocks in one clip.
func (r *RecorderSettings) WindowBlocks() int {
	return r.ClipLength * BlocksPerSecond
}

// PreRollBlocks converts a pre-roll in seconds to whole blocks, rounding to nearest.
func PreRollBlocks(seconds float64) int {
	return int(math.Round(seconds * BlocksPerSecond))
}

// ManualTriggered reports whether clips are started by the operator.
func (s *Settings) ManualTriggered() bool {
	return s.Recorder.Mode == RecModeManual || s.Detection.Algorithm == AlgorithmManual
}

// AlwaysRecord reports whether every block counts as a detection.
func (s *Settings) AlwaysRecord() bool {
	switch s.Recorder.Mode {
	case RecModeOn, RecModeSchedulerOn:
		return true
	}
	return s.Detection.Algorithm == AlgorithmNone && !s.ManualTriggered()
}
