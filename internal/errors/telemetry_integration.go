package errors

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	// Categories below this set are expected during normal field operation
	// and are not worth an event.
	skip map[ErrorCategory]bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{
		enabled: enabled,
		skip: map[ErrorCategory]bool{
			CategoryProtocol:   true,
			CategoryValidation: true,
		},
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends an enhanced error to Sentry with scrubbed context
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || sr.skip[ee.Category] {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		title := fmt.Sprintf("%s %s error", ee.GetComponent(), ee.Category)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		level := levelFor(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryHardware, CategoryTiming, CategoryConfiguration:
		return sentry.LevelError
	case CategoryStorage, CategoryFileIO, CategoryNetwork:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}

var (
	reporterMu         sync.RWMutex
	telemetryReporter  TelemetryReporter
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter sets the global telemetry reporter. Pass nil to disable.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return telemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

var (
	queryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	secretRegex = regexp.MustCompile(`(?i)(password|token|api[_-]?key)[=:]\S+`)
)

// scrubMessage removes query strings and credentials from messages sent off-device.
func scrubMessage(message string) string {
	message = queryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	return secretRegex.ReplaceAllString(message, "$1=[REDACTED]")
}
