package resilience

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamsync/metric"
)

// Call outcomes reported on the calls_total counter.
const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultRejected = "rejected"
)

type promMetrics struct {
	calls       *prometheus.CounterVec
	retries     *prometheus.CounterVec
	reauths     *prometheus.CounterVec
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func newPromMetrics(registry *metric.MetricsRegistry, name string) (*promMetrics, error) {
	labels := prometheus.Labels{"executor": name}

	m := &promMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "resilience",
			Name:        "calls_total",
			Help:        "Operation attempts by result (success, failure, rejected)",
			ConstLabels: labels,
		}, []string{"operation", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "resilience",
			Name:        "retries_total",
			Help:        "Retries scheduled after a transient failure",
			ConstLabels: labels,
		}, []string{"operation"}),
		reauths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "resilience",
			Name:        "reauthentications_total",
			Help:        "Re-authentication callbacks run after an authorization failure",
			ConstLabels: labels,
		}, []string{"operation"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			ConstLabels: labels,
		}, []string{"operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "resilience",
			Name:        "breaker_transitions_total",
			Help:        "Circuit breaker state changes by target state",
			ConstLabels: labels,
		}, []string{"operation", "to"}),
	}

	if registry == nil {
		return m, nil
	}
	if err := registry.RegisterCounterVec(name, "calls", m.calls); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "retries", m.retries); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "reauthentications", m.reauths); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec(name, "breaker_state", m.state); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "breaker_transitions", m.transitions); err != nil {
		return nil, err
	}
	return m, nil
}
