// Package metric provides Prometheus metrics registration and exposition.
//
// MetricsRegistry wraps a private prometheus.Registry. Components build their
// own collectors and register them under a "service.metric" key, which guards
// against duplicate registration:
//
//	registry := metric.NewMetricsRegistry()
//	sent := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "transport",
//	    Name:      "messages_sent_total",
//	    Help:      "Messages written to the transport",
//	})
//	if err := registry.RegisterCounter("transport", "messages_sent", sent); err != nil {
//	    return err
//	}
//
// Core metrics (health status, error totals, build info) are created with the
// registry and exposed through CoreMetrics.
//
// Server serves the registry at /metrics (OpenMetrics enabled) and a /health
// endpoint backed by a HealthFunc.
package metric
