package processor

import "github.com/tphakala/batrec/internal/audiocore"

// ClipState is the clip boundary state of the processor.
type ClipState int

const (
	// StateIdle has an empty window.
	StateIdle ClipState = iota
	// StateArmed holds pre-roll blocks and waits for a call.
	StateArmed
	// StateTriggered has seen a call and counts post-roll blocks.
	StateTriggered
)

func (s ClipState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// clipTracker decides clip boundaries from per-block detection results.
// It does not own the window; the caller reports the window fill.
type clipTracker struct {
	state ClipState
	// post counts blocks received after the trigger block.
	post     int
	postRoll int
	peak     *audiocore.Peak
}

func newClipTracker(windowBlocks, preRollBlocks int) *clipTracker {
	return &clipTracker{postRoll: windowBlocks - preRollBlocks}
}

// step applies one block's result and reports whether the clip is complete.
func (t *clipTracker) step(res audiocore.DetectionResult, windowFull bool) bool {
	switch t.state {
	case StateIdle, StateArmed:
		if !res.CallPresent {
			t.state = StateArmed
			return false
		}
		t.state = StateTriggered
		t.post = 0
		t.peak = nil
		t.updatePeak(res.Peak)
		return false
	case StateTriggered:
		t.post++
		if res.CallPresent {
			t.updatePeak(res.Peak)
		}
		return t.post >= t.postRoll && windowFull
	}
	return false
}

func (t *clipTracker) updatePeak(p *audiocore.Peak) {
	if p == nil {
		return
	}
	if t.peak == nil || p.LevelDBFS > t.peak.LevelDBFS {
		cp := *p
		t.peak = &cp
	}
}

// reset returns to Idle after a clip was emitted or the window was flushed.
func (t *clipTracker) reset() {
	t.state = StateIdle
	t.post = 0
	t.peak = nil
}
