package audiocore

import "github.com/tphakala/batrec/internal/logger"

// GetLogger returns the audio module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
