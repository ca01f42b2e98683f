// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

var sentryInitialized atomic.Bool

// PlatformInfo holds privacy-safe platform information for telemetry
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	Platform     string `json:"platform,omitempty"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

// collectPlatformInfo gathers privacy-safe platform information for telemetry
func collectPlatformInfo() PlatformInfo {
	info := PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
	// Distribution name and version only; hostname and IDs are not collected.
	if hi, err := host.Info(); err == nil {
		info.Platform = hi.Platform + " " + hi.PlatformVersion
	}
	return info
}

// InitSentry initializes Sentry when the user has enabled it and installs
// the error reporter, so built errors flow to Sentry from then on.
func InitSentry(settings *conf.Settings, version, systemID string) error {
	log := GetLogger()
	sc := settings.Telemetry.Sentry
	if !sc.Enabled {
		log.Debug("sentry telemetry is disabled")
		return nil
	}
	if sc.DSN == "" {
		return fmt.Errorf("sentry enabled but no dsn configured")
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sc.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "batrec@" + version,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	configureSentryScope(version, systemID)
	sentryInitialized.Store(true)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry telemetry initialized", logger.String("system_id", systemID))
	return nil
}

// applyPrivacyFilters strips identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" && k != "category" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

func configureSentryScope(version, systemID string) {
	platformInfo := collectPlatformInfo()

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", systemID)
		scope.SetTag("os", platformInfo.OS)
		scope.SetTag("arch", platformInfo.Architecture)

		scope.SetContext("application", map[string]any{
			"name":      "batrec",
			"version":   version,
			"system_id": systemID,
		})
		scope.SetContext("platform", map[string]any{
			"os":           platformInfo.OS,
			"architecture": platformInfo.Architecture,
			"platform":     platformInfo.Platform,
			"num_cpu":      platformInfo.NumCPU,
			"go_version":   platformInfo.GoVersion,
		})
	})
}

// CaptureMessage sends a message event when Sentry is initialized.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !sentryInitialized.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}

// Flush ensures all buffered events are sent to Sentry
func Flush(timeout time.Duration) {
	if sentryInitialized.Load() {
		sentry.Flush(timeout)
	}
}

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
