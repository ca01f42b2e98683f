// Package errors provides categorized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	// CategoryHardware covers device open, read and overrun failures.
	CategoryHardware ErrorCategory = "hardware"
	// CategoryTiming covers clock drift and watchdog timeouts. Always leads to a restart.
	CategoryTiming ErrorCategory = "timing"
	// CategoryStorage covers missing or full targets. The affected clip is skipped.
	CategoryStorage ErrorCategory = "storage"
	// CategoryProtocol covers malformed or empty device reads. Transient.
	CategoryProtocol ErrorCategory = "protocol"

	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryState         ErrorCategory = "state"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryProcessing    ErrorCategory = "processing"
	CategoryNetwork       ErrorCategory = "network"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

const modulePrefix = "github.com/tphakala/batrec/internal/"

// EnhancedError wraps an error with a component, category and context
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time

	component string
	context   map[string]any
	reported  atomic.Bool
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return ee.Category == other.Category
	}
	return false
}

// GetComponent returns the component name
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.context))
	maps.Copy(out, ee.context)
	return out
}

// MarkReported marks this error as reported to telemetry
func (ee *EnhancedError) MarkReported() {
	ee.reported.Store(true)
}

// IsReported returns whether this error has been reported
func (ee *EnhancedError) IsReported() bool {
	return ee.reported.Load()
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder around err
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error builder
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (detected from the caller if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing adds operation timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	return eb.Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError and reports it when a telemetry reporter is active
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unspecified error")
	}

	category := eb.category
	if category == "" {
		category = inheritCategory(eb.err)
	}

	component := eb.component
	if component == "" {
		component = detectComponent()
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Timestamp: time.Now(),
		component: component,
		context:   eb.context,
	}

	if hasActiveReporting.Load() {
		reportToTelemetry(ee)
	}

	return ee
}

// inheritCategory keeps the category of a wrapped EnhancedError.
func inheritCategory(err error) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}
	return CategoryGeneric
}

// detectComponent derives the component from the first caller outside this package,
// using the package path below internal/ (e.g. "audiocore/sources/m500" -> "m500").
func detectComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if idx := strings.Index(fn, modulePrefix); idx >= 0 {
			rest := fn[idx+len(modulePrefix):]
			if !strings.HasPrefix(rest, "errors.") {
				return componentFromPath(rest)
			}
		}
		if !more {
			break
		}
	}
	return ComponentUnknown
}

func componentFromPath(path string) string {
	if slash := strings.LastIndex(path, "/"); slash >= 0 {
		path = path[slash+1:]
	}
	if dot := strings.Index(path, "."); dot > 0 {
		path = path[:dot]
	}
	if path == "" {
		return ComponentUnknown
	}
	return path
}

// Standard library passthrough functions

// NewStd creates a new standard error
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// CategoryOf returns the category of the first EnhancedError in err's tree.
func CategoryOf(err error) ErrorCategory {
	var enhancedErr *EnhancedError
	if As(err, &enhancedErr) {
		return enhancedErr.Category
	}
	return CategoryGeneric
}
