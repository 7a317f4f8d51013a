package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/streamsync/errors"
)

// fakeConn is an in-memory Conn. Written frames are published on writes;
// frames pushed with deliver are returned by ReadFrame.
type fakeConn struct {
	writes  chan Frame
	inbound chan Frame

	mu       sync.Mutex
	writeErr error
	readErr  error

	failed chan struct{}
	closed chan struct{}
	once   sync.Once
	fOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes:  make(chan Frame, 256),
		inbound: make(chan Frame, 64),
		failed:  make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.failed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return Frame{}, c.readErr
	case <-c.closed:
		return Frame{}, errors.WrapTransient(errors.ErrConnectionLost, "fakeConn", "ReadFrame", "closed")
	}
}

func (c *fakeConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errors.WrapTransient(errors.ErrConnectionLost, "fakeConn", "WriteFrame", "closed")
	default:
	}
	c.writes <- f
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// deliver queues msgs as one inbound text frame.
func (c *fakeConn) deliver(t *testing.T, msgs ...*Message) {
	t.Helper()
	f, err := EncodeBatch(msgs, false, 0)
	require.NoError(t, err)
	c.inbound <- f
}

// fail makes the pending and future ReadFrame calls return err.
func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.fOnce.Do(func() { close(c.failed) })
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// nextBatch returns the messages of the next application frame, skipping
// heartbeats and probes.
func (c *fakeConn) nextBatch(t *testing.T, within time.Duration) []*Message {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case f := <-c.writes:
			msgs, err := DecodeFrame(f)
			require.NoError(t, err)
			if msgs[0].Type == HeartbeatType || msgs[0].Type == ProbeType {
				continue
			}
			return msgs
		case <-deadline:
			t.Fatalf("no frame written within %v", within)
			return nil
		}
	}
}

// noBatch asserts that no application frame is written within d.
func (c *fakeConn) noBatch(t *testing.T, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-c.writes:
			msgs, err := DecodeFrame(f)
			require.NoError(t, err)
			if msgs[0].Type == HeartbeatType || msgs[0].Type == ProbeType {
				continue
			}
			t.Fatalf("unexpected frame with %d messages, first %q", len(msgs), msgs[0].Type)
		case <-deadline:
			return
		}
	}
}

// fakeDialer hands out fakeConns. The first failFirst dials fail, or every
// dial when failAll is set.
type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	urls      []string
	failFirst int
	failAll   bool
	// writeErr is applied to every conn handed out.
	writeErr error

	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 32)}
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, url)
	fail := d.failAll || d.dials <= d.failFirst
	n := d.dials
	writeErr := d.writeErr
	d.mu.Unlock()

	if fail {
		return nil, errors.WrapTransient(fmt.Errorf("%w: refused (dial %d)", errors.ErrConnectionFailed, n),
			"fakeDialer", "Dial", "dial")
	}

	c := newFakeConn()
	if writeErr != nil {
		c.failWrites(writeErr)
	}
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	d.failAll = v
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) nextConn(t *testing.T, within time.Duration) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(within):
		t.Fatalf("no connection dialed within %v", within)
		return nil
	}
}

// testConfig disables every timer that a test does not opt into.
func testConfig() Config {
	return Config{
		URL:                    "ws://peer.test/stream",
		ConnectTimeout:         time.Second,
		ReconnectDelay:         10 * time.Millisecond,
		ReconnectMultiplier:    2,
		MaxReconnectDelay:      40 * time.Millisecond,
		MaxReconnectAttempts:   5,
		HeartbeatInterval:      time.Hour,
		StaleTimeout:           time.Hour,
		StaleCheckInterval:     time.Minute,
		LatencyProbeInterval:   time.Hour,
		LatencyProbeTimeout:    time.Second,
		BatchSize:              10,
		BatchTimeout:           time.Hour,
		MessageBufferSize:      100,
		MaxQueueSize:           1000,
		RetentionWindow:        time.Hour,
		RetentionSweepInterval: time.Hour,
		MaxRetries:             3,
		HandlerWorkers:         2,
		HandlerQueueSize:       16,
	}
}

func newTestManager(t *testing.T, cfg Config, d Dialer, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithDialer(d)}, opts...)
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(time.Second) })
	return m
}

func messageTypes(msgs []*Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}
