// Package retry provides exponential backoff retry logic for transient failures.
//
// # Overview
//
// Do runs a function until it succeeds, the attempt budget is spent, the error
// is marked NonRetryable, or the context is cancelled. The delay before attempt
// n+1 is BackoffDelay(initial, multiplier, max, n), optionally spread by ±25%.
//
// BackoffDelay is also used directly by the transport reconnection policy so
// both the streaming transport and discrete calls grow their delays the same way:
//
//	delay := retry.BackoffDelay(time.Second, 2.0, 30*time.Second, attempt)
//
// # Usage
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Ping()
//	})
//
//	v, err := retry.DoWithResult(ctx, cfg, func() (string, error) {
//	    return fetchToken()
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately and are returned
// as-is. Circuit breaking lives in the resilience package.
package retry
