package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamsync/metric"
)

// Metrics is a read-only snapshot of transport counters and gauges.
type Metrics struct {
	MessagesSent     int64         `json:"messages_sent"`
	MessagesReceived int64         `json:"messages_received"`
	MessagesDropped  int64         `json:"messages_dropped"`
	BatchesSent      int64         `json:"batches_sent"`
	ReconnectCount   int64         `json:"reconnect_count"`
	HandlerErrors    int64         `json:"handler_errors"`
	Duplicates       int64         `json:"duplicates"` // inbound ids dropped by the dedup window
	AverageBatchSize float64       `json:"average_batch_size"`
	Latency          time.Duration `json:"latency"`
	QueueSize        int           `json:"queue_size"`
}

// Drop reasons used for the dropped-messages counter.
const (
	dropOverflow = "overflow"
	dropRetries  = "max_retries"
	dropExpired  = "expired"
	dropEncode   = "encode"
	dropClosed   = "closed"
)

// counters backs the Metrics snapshot. Guarded by the manager lock.
type counters struct {
	sent, received, dropped, batches, reconnects, handlerErrors, duplicates int64
	latency                                                                 time.Duration
}

func (c *counters) recordBatch(n int) {
	c.sent += int64(n)
	c.batches++
}

func (c *counters) averageBatchSize() float64 {
	if c.batches == 0 {
		return 0
	}
	return float64(c.sent) / float64(c.batches)
}

// latencyAlpha weights the newest sample in the smoothed latency.
const latencyAlpha = 0.3

func (c *counters) observeLatency(sample time.Duration) {
	if c.latency == 0 {
		c.latency = sample
		return
	}
	c.latency = time.Duration(latencyAlpha*float64(sample) + (1-latencyAlpha)*float64(c.latency))
}

// promMetrics mirrors the counters into Prometheus. Without a registry the
// collectors still work but are never exported.
type promMetrics struct {
	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	messagesDropped  *prometheus.CounterVec
	batchSize        prometheus.Histogram
	reconnects       prometheus.Counter
	handlerErrors    prometheus.Counter
	latency          prometheus.Gauge
	queueSize        prometheus.Gauge
	state            prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
}

func newPromMetrics(registry *metric.MetricsRegistry, name string) (*promMetrics, error) {
	labels := prometheus.Labels{"manager": name}

	m := &promMetrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "messages_sent_total",
			Help:        "Application messages written to the wire",
			ConstLabels: labels,
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "messages_received_total",
			Help:        "Messages decoded from inbound frames",
			ConstLabels: labels,
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "messages_dropped_total",
			Help:        "Messages permanently dropped, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "batch_size",
			Help:        "Messages per written batch",
			Buckets:     []float64{1, 2, 5, 10, 20, 50, 100},
			ConstLabels: labels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "reconnects_total",
			Help:        "Automatic reconnection attempts",
			ConstLabels: labels,
		}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "handler_errors_total",
			Help:        "Handler failures, panics and rejections",
			ConstLabels: labels,
		}),
		latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "latency_seconds",
			Help:        "Smoothed round-trip latency from probes",
			ConstLabels: labels,
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "queue_size",
			Help:        "Messages accepted but not yet written",
			ConstLabels: labels,
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "connection_state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=connected, 3=error)",
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "transport",
			Name:        "errors_total",
			Help:        "Transport errors by type",
			ConstLabels: labels,
		}, []string{"type"}),
	}

	if registry == nil {
		return m, nil
	}
	if err := registry.RegisterCounter(name, "messages_sent", m.messagesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "messages_received", m.messagesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "messages_dropped", m.messagesDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(name, "batch_size", m.batchSize); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "reconnects", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "handler_errors", m.handlerErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "latency", m.latency); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "queue_size", m.queueSize); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "connection_state", m.state); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "errors", m.errorsTotal); err != nil {
		return nil, err
	}
	return m, nil
}
