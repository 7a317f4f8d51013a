package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"stale connection", ErrConnectionStale, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"fatal error", ErrResourceExhausted, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"connection error", &ConnectionError{URL: "ws://x", Err: ErrConnectionTimeout}, true},
		{"send error", &SendError{BatchSize: 2, Err: fmt.Errorf("broken pipe")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"reconnect exhausted", ErrReconnectExceeded, true},
		{"resource exhausted", ErrResourceExhausted, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"panic in message", fmt.Errorf("panic: system failure"), true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsFatal(test.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrInvalidAddress))
	assert.True(t, IsInvalid(WrapInvalid(fmt.Errorf("bad"), "C", "m", "a")))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestIsAuth(t *testing.T) {
	assert.False(t, IsAuth(nil))
	assert.True(t, IsAuth(ErrUnauthorized))
	assert.True(t, IsAuth(fmt.Errorf("call: %w", ErrUnauthorized)))
	assert.True(t, IsAuth(fmt.Errorf("rpc error: code = PermissionDenied desc = permission denied")))
	assert.True(t, IsAuth(fmt.Errorf("HTTP 403 Forbidden")))
	assert.False(t, IsAuth(ErrConnectionTimeout))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrParsingFailed))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")

	connErr := &ConnectionError{URL: "ws://localhost:1", Attempt: 2, Err: cause}
	assert.ErrorIs(t, connErr, ErrConnectionFailed)
	assert.ErrorIs(t, connErr, cause)
	assert.Contains(t, connErr.Error(), "attempt 2")

	sendErr := &SendError{BatchSize: 3, Err: cause}
	assert.ErrorIs(t, sendErr, ErrSendFailed)
	assert.ErrorIs(t, sendErr, cause)

	handlerErr := &HandlerError{MessageType: "chat", MessageID: "m1", Err: cause}
	assert.ErrorIs(t, handlerErr, ErrHandlerFailed)
	assert.Contains(t, handlerErr.Error(), `"chat"`)

	circuitErr := &CircuitOpenError{Operation: "fetch", RetryIn: time.Second}
	assert.ErrorIs(t, circuitErr, ErrCircuitOpen)

	var target *CircuitOpenError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", circuitErr), &target))
	assert.Equal(t, "fetch", target.Operation)
}

func TestConnectionError_PreservesClassification(t *testing.T) {
	invalid := WrapInvalid(ErrInvalidAddress, "Manager", "Connect", "parse address")
	connErr := &ConnectionError{URL: "::bad", Err: invalid}

	assert.True(t, IsInvalid(connErr))
	assert.False(t, IsTransient(connErr))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "m", "a"))

	err := Wrap(ErrConnectionLost, "Manager", "Send", "write frame")
	assert.Equal(t, "Manager.Send: write frame failed: connection lost", err.Error())
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestWrapClassified(t *testing.T) {
	base := fmt.Errorf("boom")

	transient := WrapTransient(base, "C", "m", "a")
	var ce *ClassifiedError
	require.True(t, errors.As(transient, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "C", ce.Component)
	assert.Equal(t, "m", ce.Operation)
	assert.ErrorIs(t, transient, base)

	assert.True(t, IsFatal(WrapFatal(base, "C", "m", "a")))
	assert.True(t, IsInvalid(WrapInvalid(base, "C", "m", "a")))
	assert.Nil(t, WrapTransient(nil, "C", "m", "a"))
}

func BenchmarkIsTransient(b *testing.B) {
	err := fmt.Errorf("wrapped: %w", ErrConnectionTimeout)
	for i := 0; i < b.N; i++ {
		_ = IsTransient(err)
	}
}

func BenchmarkClassify(b *testing.B) {
	err := fmt.Errorf("some unknown failure")
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}
