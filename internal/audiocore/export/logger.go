package export

import "github.com/tphakala/batrec/internal/logger"

// GetLogger returns the file writer logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("writer")
}
