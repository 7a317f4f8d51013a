// Package errors provides standardized error handling patterns for streamsync.
// It includes error classification, the transport error taxonomy, standard error
// variables, and helper functions for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrAlreadyStopped = errors.New("already stopped")
	ErrShuttingDown   = errors.New("shutting down")

	// Connection and transport errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrConnectionStale   = errors.New("connection stale")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrSendFailed        = errors.New("send failed")
	ErrReconnectExceeded = errors.New("reconnect attempts exhausted")

	// Data processing errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrDataCorrupted = errors.New("data corrupted")
	ErrParsingFailed = errors.New("parsing failed")

	// Handler errors
	ErrHandlerFailed = errors.New("handler failed")
	ErrHandlerPanic  = errors.New("handler panicked")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Resource errors
	ErrQueueFull         = errors.New("queue full")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrRateLimited       = errors.New("rate limited")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Circuit breaker and retry errors
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ConnectionError reports a handshake or timeout failure while establishing
// the transport. Only the caller of a manual Connect ever receives one.
type ConnectionError struct {
	URL     string
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("connect %s (attempt %d): %v", e.URL, e.Attempt, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnectionFailed, e.Err}
}

// SendError reports a write failure on an established connection.
type SendError struct {
	BatchSize int
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send batch of %d: %v", e.BatchSize, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *SendError) Unwrap() []error {
	return []error{ErrSendFailed, e.Err}
}

// HandlerError wraps a failure returned or raised by an application handler.
type HandlerError struct {
	MessageType string
	MessageID   string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q (message %s): %v", e.MessageType, e.MessageID, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}

// CircuitOpenError is returned without invoking the operation when its
// circuit breaker is open.
type CircuitOpenError struct {
	Operation string
	RetryIn   time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %q, retry in %v", e.Operation, e.RetryIn)
}

// Unwrap returns ErrCircuitOpen
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	// Check for known transient errors
	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionStale) ||
		errors.Is(err, ErrSendFailed) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
		"retry",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDataCorrupted) ||
		errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrReconnectExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"corrupted",
		"invalid config",
		"missing config",
		"out of memory",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrInvalidAddress)
}

// IsAuth reports whether err is an authorization failure. Authorization
// failures are never retried blindly; callers may re-authenticate first.
func IsAuth(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"unauthorized", "unauthenticated", "forbidden", "permission denied"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors default to transient so they get retried
	return ErrorTransient
}

// newClassified creates a new classified error
// Use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
