package processor

import (
	"github.com/tphakala/batrec/internal/logger"
)

// GetLogger returns the stream processor logger
func GetLogger() logger.Logger {
	return logger.Global().Module("processor")
}
