// Package resilience wraps discrete remote calls with retries and a circuit
// breaker per operation name.
//
// # Breakers
//
// Each operation name gets its own breaker, created on first use:
//
//	closed --FailureThreshold consecutive failures--> open
//	open --Cooldown elapsed--> half-open (one trial call admitted)
//	half-open --trial succeeds--> closed
//	half-open --trial fails--> open (cooldown restarts)
//
// While open, calls return *errors.CircuitOpenError without running the
// operation. Invalid-input failures and caller cancellations do not count
// against a breaker.
//
// # Retries
//
// Transient failures are retried up to MaxAttempts with exponential backoff
// and ±25% jitter from pkg/retry. Invalid, fatal and authorization errors are
// returned without retry. With a Reauthenticator configured, an
// authorization failure runs it once and repeats the call once.
//
// # Usage
//
//	ex, err := resilience.NewExecutor(resilience.DefaultConfig(),
//	    resilience.WithMetricsRegistry(registry),
//	    resilience.WithReauthenticator(refreshToken))
//	if err != nil {
//	    return err
//	}
//	defer ex.Close()
//
//	profile, err := resilience.ExecuteWithRetry(ctx, ex, "fetch_profile",
//	    func(ctx context.Context) (*Profile, error) {
//	        return api.Profile(ctx, userID)
//	    })
//
//	results := ex.ExecuteBatch(ctx, []resilience.Operation{
//	    {Name: "sync_contacts", Call: syncContacts},
//	    {Name: "sync_calendar", Call: syncCalendar},
//	})
package resilience
