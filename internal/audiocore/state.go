package audiocore

// StreamState is the lifecycle state of a Pipeline.
type StreamState int32

const (
	StateIdle StreamState = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
	// StateFaulted means the run ended on a timing fault and a restart is expected.
	StateFaulted
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Active reports whether a run holds the device in this state.
func (s StreamState) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateDraining
}
