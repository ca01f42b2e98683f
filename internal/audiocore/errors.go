package audiocore

import "github.com/tphakala/batrec/internal/errors"

const componentAudioCore = "audiocore"

var (
	// ErrAlreadyRunning is returned by Start while a previous run is active.
	ErrAlreadyRunning = errors.NewStd("pipeline already running")

	// ErrNoDevice is returned by stage factories when no capture device could be resolved.
	ErrNoDevice = errors.NewStd("No valid microphone")
)

// NoDeviceError wraps ErrNoDevice as a hardware error with the probed sources.
func NoDeviceError(tried ...string) error {
	return errors.New(ErrNoDevice).
		Component(componentAudioCore).
		Category(errors.CategoryHardware).
		Context("tried", tried).
		Build()
}
