package conf

import "github.com/tphakala/batrec/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger on each call so it follows SetGlobal done after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
