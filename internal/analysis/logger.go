package analysis

import (
	"github.com/tphakala/batrec/internal/logger"
)

// GetLogger returns the recording manager logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
