package errors

import (
	stderrors "errors"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Code classifies a collection failure.
type Code string

// Exporter error codes.
const (
	ErrClusterInfoFailed Code = "CLUSTER_INFO_FAILED"
	ErrNodeListFailed    Code = "NODE_LIST_FAILED"
	ErrNodeInvalid       Code = "NODE_INVALID"
	ErrTelemetryFailed   Code = "TELEMETRY_FAILED"
	ErrPodListFailed     Code = "POD_LIST_FAILED"
	ErrQuantityInvalid   Code = "QUANTITY_INVALID"
	ErrCollectorPanic    Code = "COLLECTOR_PANIC"
	ErrCanceled          Code = "CANCELED"
	ErrUnknown           Code = "UNKNOWN"
)

// defaultTTL is the auto-expiry duration for errors not re-reported.
const defaultTTL = 5 * time.Minute

// ExporterError is a typed failure raised by one component of a collection cycle.
type ExporterError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *ExporterError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *ExporterError) Unwrap() error {
	return e.Err
}

// New creates an ExporterError without a cause.
func New(code Code, component, message string) *ExporterError {
	return &ExporterError{Code: code, Component: component, Message: message}
}

// Wrap creates an ExporterError around cause.
func Wrap(code Code, component, message string, cause error) *ExporterError {
	return &ExporterError{Code: code, Component: component, Message: message, Err: cause}
}

// CodeOf returns the code of the outermost ExporterError in err's chain,
// or ErrUnknown when there is none.
func CodeOf(err error) Code {
	var ee *ExporterError
	if stderrors.As(err, &ee) {
		return ee.Code
	}
	return ErrUnknown
}

// entry wraps an ExporterError with its last-reported time for expiry tracking.
type entry struct {
	err        ExporterError
	lastReport time.Time
}

// ErrorCollector is a thread-safe store for recently seen exporter errors.
// Errors are keyed by Code+Component and auto-expire after 5 minutes
// if not re-reported.
type ErrorCollector struct {
	mu      sync.Mutex
	clock   clock.PassiveClock
	entries map[string]entry // key = string(Code) + "|" + Component
}

// NewErrorCollector creates an ErrorCollector with the given clock.
func NewErrorCollector(clk clock.PassiveClock) *ErrorCollector {
	return &ErrorCollector{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes an error. The dedup key is Code+Component.
func (ec *ErrorCollector) Report(err ExporterError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	if err.Timestamp == 0 {
		err.Timestamp = now.UnixMilli()
	}
	ec.entries[key(err.Code, err.Component)] = entry{
		err:        err,
		lastReport: now,
	}
}

// ReportError records an arbitrary error under component. ExporterErrors keep
// their code; anything else is recorded as ErrUnknown.
func (ec *ErrorCollector) ReportError(component string, err error) {
	if err == nil {
		return
	}
	ee := ExporterError{
		Code:      CodeOf(err),
		Message:   err.Error(),
		Component: component,
		Err:       err,
	}
	ec.Report(ee)
}

// GetActiveErrors returns all errors that have been reported within the TTL window.
func (ec *ErrorCollector) GetActiveErrors() []ExporterError {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	result := make([]ExporterError, 0, len(ec.entries))
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(ec.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	return result
}

// GetActiveErrorCodes returns a deduplicated list of active error codes.
func (ec *ErrorCollector) GetActiveErrorCodes() []string {
	seen := make(map[Code]struct{})
	codes := make([]string, 0)
	for _, e := range ec.GetActiveErrors() {
		if _, ok := seen[e.Code]; !ok {
			seen[e.Code] = struct{}{}
			codes = append(codes, string(e.Code))
		}
	}
	return codes
}
