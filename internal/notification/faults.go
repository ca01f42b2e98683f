package notification

import "fmt"

// RestartRequested notifies that the pipeline is being restarted.
func (s *Service) RestartRequested(reason string) bool {
	return s.Notify(NewNotification(TypeError,
		"Recorder restarting",
		fmt.Sprintf("The recording pipeline requested a restart (%s).", reason)).
		WithComponent("pipeline"))
}

// StorageUnavailable notifies that clips are being skipped for lack of space.
func (s *Service) StorageUnavailable(err error) bool {
	msg := "No storage target has enough free space; new clips are skipped."
	if err != nil {
		msg = fmt.Sprintf("%s %v", msg, err)
	}
	return s.Notify(NewNotification(TypeWarning, "Storage unavailable", msg).
		WithComponent("storage"))
}

// NoDevice notifies that recording could not start.
func (s *Service) NoDevice(status string) bool {
	return s.Notify(NewNotification(TypeError, "No microphone", status).
		WithComponent("capture"))
}
