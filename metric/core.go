package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every streamsync metric.
const Namespace = "streamsync"

// Metrics contains process-wide metrics that are not owned by one component.
// Component metrics (transport, resilience, buffer, worker) are created by
// their packages and registered through MetricsRegistry.
type Metrics struct {
	HealthCheckStatus *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	BuildInfo         *prometheus.GaugeVec
}

// NewMetrics creates the core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=degraded, 2=healthy)",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and type",
			},
			[]string{"component", "type"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "build_info",
				Help:      "Build information, value is always 1",
			},
			[]string{"version"},
		),
	}
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates the health gauge for a component
func (c *Metrics) RecordHealthStatus(component string, healthy, degraded bool) {
	value := 0.0
	switch {
	case healthy:
		value = 2.0
	case degraded:
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordBuildInfo publishes the running version
func (c *Metrics) RecordBuildInfo(version string) {
	c.BuildInfo.WithLabelValues(version).Set(1)
}
