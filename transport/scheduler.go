package transport

import "time"

// flushReason records which trigger released a batch.
type flushReason string

const (
	flushCritical flushReason = "critical"
	flushSize     flushReason = "size"
	flushTimeout  flushReason = "timeout"
	flushReplay   flushReason = "replay"
)

// batchScheduler accumulates outbound messages for one connection. It owns
// a single pending-flush timer. It is not safe for concurrent use; the
// Manager calls it with its lock held.
type batchScheduler struct {
	size    int
	timeout time.Duration
	pending []*Message
	timer   *time.Timer
	seq     uint64

	// onTimeout runs on the timer goroutine when the batch window closes.
	// The caller must check expired(seq) under its lock before flushing.
	onTimeout func(s *batchScheduler, seq uint64)
}

func newBatchScheduler(size int, timeout time.Duration, onTimeout func(*batchScheduler, uint64)) *batchScheduler {
	return &batchScheduler{
		size:      size,
		timeout:   timeout,
		onTimeout: onTimeout,
	}
}

// add accepts msg and returns a sorted batch when a flush is due now.
func (s *batchScheduler) add(msg *Message) ([]*Message, flushReason) {
	s.pending = append(s.pending, msg)

	switch {
	case msg.Priority == PriorityCritical:
		return s.takeAll(), flushCritical
	case len(s.pending) >= s.size:
		return s.takeAll(), flushSize
	}

	if s.timer == nil {
		s.seq++
		seq := s.seq
		s.timer = time.AfterFunc(s.timeout, func() { s.onTimeout(s, seq) })
	}
	return nil, ""
}

// takeAll removes and returns everything pending, sorted, and disarms the timer.
func (s *batchScheduler) takeAll() []*Message {
	s.stop()
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil
	SortMessages(batch)
	return batch
}

// expired reports whether the timer armed as seq is still the live one.
func (s *batchScheduler) expired(seq uint64) bool {
	return s.timer != nil && s.seq == seq
}

// stop disarms the flush timer. A callback already running sees expired
// return false and does nothing.
func (s *batchScheduler) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *batchScheduler) len() int {
	return len(s.pending)
}
