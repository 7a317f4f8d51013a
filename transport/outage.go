package transport

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/streamsync/metric"
	"github.com/c360/streamsync/pkg/buffer"
	"github.com/c360/streamsync/pkg/timestamp"
)

// outageQueue holds messages accepted while no connection is live. It is
// bounded by MaxQueueSize and releases messages in priority/FIFO order.
type outageQueue struct {
	buf       *buffer.Ordered[*Message]
	retention time.Duration
	highWater int

	// warn rate-limits high-water warnings
	warn *rate.Limiter
}

// newOutageQueue builds the queue. Overflow is reported through push's error,
// so the caller can signal it while holding its own lock.
func newOutageQueue(cfg Config, registry *metric.MetricsRegistry, name string) (*outageQueue, error) {
	opts := []buffer.Option[*Message]{
		buffer.WithOverflowPolicy[*Message](buffer.DropNewest),
	}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[*Message](registry, name+"_outage"))
	}

	buf, err := buffer.NewOrdered[*Message](cfg.MaxQueueSize, Before, opts...)
	if err != nil {
		return nil, err
	}

	return &outageQueue{
		buf:       buf,
		retention: cfg.RetentionWindow,
		highWater: cfg.MessageBufferSize,
		warn:      rate.NewLimiter(rate.Every(10*time.Second), 1),
	}, nil
}

// push appends msg. The error is non-nil when the queue is full.
func (q *outageQueue) push(msg *Message) error {
	return q.buf.Write(msg)
}

// aboveHighWater reports whether a high-water warning should be emitted now.
func (q *outageQueue) aboveHighWater() bool {
	return q.buf.Len() > q.highWater && q.warn.Allow()
}

// purgeExpired drops messages older than the retention window.
func (q *outageQueue) purgeExpired(now time.Time) int {
	cutoff := timestamp.ToUnixMs(now.Add(-q.retention))
	return q.buf.Purge(func(m *Message) bool {
		return m.Timestamp < cutoff
	})
}

// drainChunks empties the queue into sorted chunks of at most size messages.
func (q *outageQueue) drainChunks(size int) [][]*Message {
	var chunks [][]*Message
	for {
		chunk := q.buf.DrainBatch(size)
		if len(chunk) == 0 {
			return chunks
		}
		chunks = append(chunks, chunk)
	}
}

func (q *outageQueue) len() int {
	return q.buf.Len()
}

func (q *outageQueue) clear() int {
	return q.buf.Clear()
}
