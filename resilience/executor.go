package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamsync/errors"
	"github.com/c360/streamsync/health"
	"github.com/c360/streamsync/metric"
	"github.com/c360/streamsync/pkg/retry"
)

// Executor runs named remote operations with retries and one circuit
// breaker per operation name. It is safe for concurrent use.
type Executor struct {
	cfg      Config
	name     string
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	prom     *promMetrics
	reauth   Reauthenticator
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewExecutor builds an executor. Zero config fields take their defaults.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ex := &Executor{
		cfg:      cfg,
		name:     "resilience",
		logger:   slog.Default(),
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(ex)
	}
	ex.logger = ex.logger.With("component", ex.name)

	prom, err := newPromMetrics(ex.registry, ex.name)
	if err != nil {
		return nil, errors.WrapFatal(err, "Executor", "NewExecutor", "metrics registration")
	}
	ex.prom = prom
	return ex, nil
}

// ExecuteWithRetry runs op under the breaker for name, retrying transient
// failures with exponential backoff. Invalid, fatal and authorization errors
// are returned as-is without retry, except that an authorization failure
// first runs the reauthenticator and retries the operation once. An open
// breaker returns *errors.CircuitOpenError without calling op. When every
// attempt fails the error wraps errors.ErrMaxRetriesExceeded and the last
// failure.
func ExecuteWithRetry[T any](ctx context.Context, ex *Executor, name string,
	op func(context.Context) (T, error), opts ...CallOption,
) (T, error) {
	var zero T
	if op == nil || name == "" {
		return zero, errors.WrapInvalid(errors.ErrInvalidData, "Executor", "ExecuteWithRetry", "operation and name are required")
	}
	if err := ctx.Err(); err != nil {
		return zero, errors.WrapTransient(err, "Executor", "ExecuteWithRetry", name)
	}

	call := callConfig{cfg: ex.cfg, reauth: ex.reauth}
	for _, opt := range opts {
		opt(&call)
	}

	rcfg := call.cfg.retryConfig()
	rcfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		ex.prom.retries.WithLabelValues(name).Inc()
		ex.logger.Debug("Retrying operation",
			"operation", name, "attempt", attempt, "delay", delay, "error", err)
	}

	var lastErr, final error
	result, err := retry.DoWithResult(ctx, rcfg, func() (T, error) {
		v, err := runAttempt(ctx, ex, name, op, call.reauth)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) {
			final = err
			return v, retry.NonRetryable(err)
		}
		return v, err
	})

	switch {
	case err == nil:
		return result, nil
	case final != nil:
		return zero, final
	case ctx.Err() != nil:
		return zero, errors.WrapTransient(err, "Executor", "ExecuteWithRetry", name)
	case lastErr == nil:
		return zero, errors.WrapInvalid(err, "Executor", "ExecuteWithRetry", name)
	default:
		ex.logger.Warn("Operation failed after retries",
			"operation", name, "attempts", call.cfg.MaxAttempts, "error", lastErr)
		return zero, fmt.Errorf("%w: %s after %d attempts: %w",
			errors.ErrMaxRetriesExceeded, name, call.cfg.MaxAttempts, lastErr)
	}
}

func runAttempt[T any](ctx context.Context, ex *Executor, name string,
	op func(context.Context) (T, error), reauth Reauthenticator,
) (T, error) {
	var zero T
	if err := ex.acquire(name); err != nil {
		return zero, err
	}

	v, err := op(ctx)
	if err != nil && errors.IsAuth(err) && reauth != nil {
		ex.prom.reauths.WithLabelValues(name).Inc()
		ex.logger.Info("Re-authenticating after authorization failure", "operation", name)
		if rerr := reauth(ctx); rerr != nil {
			err = errors.WrapFatal(fmt.Errorf("%w (reauthentication: %v)", err, rerr),
				"Executor", "ExecuteWithRetry", "reauthenticate "+name)
		} else {
			v, err = op(ctx)
		}
	}

	ex.release(name, err)
	return v, err
}

// retryable reports whether another attempt may help.
func retryable(err error) bool {
	if stderrors.Is(err, errors.ErrCircuitOpen) || errors.IsAuth(err) {
		return false
	}
	switch errors.Classify(err) {
	case errors.ErrorInvalid, errors.ErrorFatal:
		return false
	}
	return true
}

// outcomeFor maps a call result onto the breaker. Caller mistakes and
// cancellations say nothing about the remote side.
func outcomeFor(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case stderrors.Is(err, context.Canceled), errors.IsInvalid(err):
		return outcomeNeutral
	default:
		return outcomeFailure
	}
}

func (ex *Executor) acquire(name string) error {
	ex.mu.Lock()
	b := ex.breakerLocked(name)
	prev := b.state
	retryIn, ok := b.allow(ex.now(), ex.cfg.Cooldown)
	next := b.state
	ex.mu.Unlock()

	if next != prev {
		ex.transitioned(name, prev, next, nil)
	}
	if !ok {
		ex.prom.calls.WithLabelValues(name, resultRejected).Inc()
		return &errors.CircuitOpenError{Operation: name, RetryIn: retryIn}
	}
	return nil
}

func (ex *Executor) release(name string, err error) {
	o := outcomeFor(err)

	ex.mu.Lock()
	b := ex.breakerLocked(name)
	prev := b.record(o, err, ex.now(), ex.cfg.FailureThreshold)
	next := b.state
	ex.mu.Unlock()

	if err == nil {
		ex.prom.calls.WithLabelValues(name, resultSuccess).Inc()
	} else {
		ex.prom.calls.WithLabelValues(name, resultFailure).Inc()
	}
	if next != prev {
		ex.transitioned(name, prev, next, err)
	}
}

func (ex *Executor) breakerLocked(name string) *breaker {
	b, ok := ex.breakers[name]
	if !ok {
		b = &breaker{}
		ex.breakers[name] = b
	}
	return b
}

func (ex *Executor) transitioned(name string, from, to BreakerState, cause error) {
	ex.prom.state.WithLabelValues(name).Set(float64(to))
	ex.prom.transitions.WithLabelValues(name, to.String()).Inc()

	switch to {
	case BreakerOpen:
		ex.logger.Warn("Circuit breaker opened",
			"operation", name, "from", from.String(), "cooldown", ex.cfg.Cooldown, "error", cause)
	case BreakerHalfOpen:
		ex.logger.Debug("Circuit breaker half-open, admitting trial call", "operation", name)
	case BreakerClosed:
		ex.logger.Info("Circuit breaker closed", "operation", name, "from", from.String())
	}
}

// CircuitBreakerStatus returns a snapshot of every breaker seen so far.
func (ex *Executor) CircuitBreakerStatus() map[string]BreakerStatus {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	now := ex.now()
	out := make(map[string]BreakerStatus, len(ex.breakers))
	for name, b := range ex.breakers {
		out[name] = b.status(now, ex.cfg.Cooldown)
	}
	return out
}

// ResetCircuitBreaker closes the breaker for name and clears its history.
func (ex *Executor) ResetCircuitBreaker(name string) {
	ex.mu.Lock()
	_, ok := ex.breakers[name]
	delete(ex.breakers, name)
	ex.mu.Unlock()

	if ok {
		ex.prom.state.WithLabelValues(name).Set(float64(BreakerClosed))
	}
}

// ResetAllCircuitBreakers closes every breaker and clears their history.
func (ex *Executor) ResetAllCircuitBreakers() {
	ex.mu.Lock()
	names := make([]string, 0, len(ex.breakers))
	for name := range ex.breakers {
		names = append(names, name)
	}
	ex.breakers = make(map[string]*breaker)
	ex.mu.Unlock()

	for _, name := range names {
		ex.prom.state.WithLabelValues(name).Set(float64(BreakerClosed))
	}
	ex.logger.Info("Circuit breakers reset", "count", len(names))
}

// Health is degraded while any breaker is open or half-open.
func (ex *Executor) Health() health.Status {
	statuses := ex.CircuitBreakerStatus()

	var tripped []string
	for name, s := range statuses {
		if s.State != BreakerClosed {
			tripped = append(tripped, name+"="+s.State.String())
		}
	}
	if len(tripped) == 0 {
		return health.NewHealthy(ex.name, fmt.Sprintf("%d circuit breakers closed", len(statuses)))
	}
	sort.Strings(tripped)
	return health.NewDegraded(ex.name, "circuit breakers tripped: "+strings.Join(tripped, ", "))
}

// Close releases the executor's metrics.
func (ex *Executor) Close() {
	if ex.registry != nil {
		ex.registry.UnregisterService(ex.name)
	}
}
