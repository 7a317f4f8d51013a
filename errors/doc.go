// Package errors provides standardized error handling patterns for streamsync.
//
// # Overview
//
// Errors are classified into three classes: Transient (temporary, retryable),
// Invalid (bad input, not retryable) and Fatal (unrecoverable). The transport
// and resilience packages use the classification to decide between retrying,
// re-queueing and surfacing a terminal condition.
//
// # Transport Error Taxonomy
//
//   - ConnectionError: handshake or timeout failure while connecting. Recovered by
//     the reconnection policy; returned only to the caller of a manual Connect.
//   - SendError: write failure on an established connection. Recovered by
//     re-queueing; messages are dropped only past the retry ceiling.
//   - HandlerError: a failure or panic from an application handler. Logged and
//     counted, never propagated to the dispatcher.
//   - CircuitOpenError: a call attempted against an open circuit. Returned
//     immediately without invoking the operation.
//
// Each typed error unwraps to its sentinel so callers can match with errors.Is:
//
//	if errors.Is(err, errors.ErrCircuitOpen) {
//	    // back off
//	}
//
// # Error Wrapping Pattern
//
// Wrapping follows "component.method: action failed: %w":
//
//	errors.WrapTransient(err, "Manager", "Connect", "dial transport")
//	errors.WrapInvalid(err, "Manager", "Connect", "parse address")
//	errors.WrapFatal(err, "Executor", "Register", "register metrics")
//
// Retry policy lives in the resilience package, which consults Classify and
// IsAuth to decide whether another attempt may help.
package errors
