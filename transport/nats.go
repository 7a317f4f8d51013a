package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamsync/errors"
)

// Subject suffixes for the two directions of a NATS-backed connection.
const (
	NATSUpSuffix   = "up"
	NATSDownSuffix = "down"

	// HeaderContentEncoding flags gzip-compressed NATS payloads.
	HeaderContentEncoding = "Content-Encoding"

	defaultNATSPrefix = "streamsync"
)

// NATSDialer maps one logical connection onto a NATS connection: frames are
// published to <prefix>.up and received from <prefix>.down. The library's own
// reconnection is disabled so the Manager stays the only reconnect authority.
//
// A URL path overrides SubjectPrefix: nats://host:4222/rooms/7 uses the
// prefix "rooms.7".
type NATSDialer struct {
	SubjectPrefix string
	Name          string
	Token         string
	User          string
	Password      string
	// TLSConfig enables TLS to the server when set.
	TLSConfig *tls.Config

	// JetStream publishes upstream frames through JetStream and waits for
	// the stream's ack, so a write only succeeds once the server stored it.
	// A stream covering <prefix>.up must exist.
	JetStream bool

	// WriteTimeout bounds a JetStream ack wait. Default 5s.
	WriteTimeout time.Duration
	// ReadBuffer is the inbound channel depth. Default 1024.
	ReadBuffer int
}

// Dial connects to the server and subscribes to the down subject.
func (d *NATSDialer) Dial(ctx context.Context, raw string) (Conn, error) {
	u, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}

	prefix := d.SubjectPrefix
	if p := strings.Trim(u.Path, "/"); p != "" {
		prefix = strings.ReplaceAll(p, "/", ".")
	}
	if prefix == "" {
		prefix = defaultNATSPrefix
	}

	server := u.Scheme + "://" + u.Host
	if u.User != nil {
		server = u.Scheme + "://" + u.User.String() + "@" + u.Host
	}

	c := &natsConn{
		up:   prefix + "." + NATSUpSuffix,
		down: prefix + "." + NATSDownSuffix,
		done: make(chan struct{}),
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, errors.WrapTransient(context.DeadlineExceeded, "NATSDialer", "Dial", "connect")
		}
	}

	opts := []nats.Option{
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if d.Name != "" {
		opts = append(opts, nats.Name(d.Name))
	}
	if d.Token != "" {
		opts = append(opts, nats.Token(d.Token))
	}
	if d.User != "" {
		opts = append(opts, nats.UserInfo(d.User, d.Password))
	}
	if d.TLSConfig != nil {
		opts = append(opts, nats.Secure(d.TLSConfig))
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	connectDone := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(server, opts...)
		connectDone <- result{nc, err}
	}()

	var nc *nats.Conn
	select {
	case r := <-connectDone:
		if r.err != nil {
			if strings.Contains(strings.ToLower(r.err.Error()), "authorization") {
				return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrUnauthorized, r.err),
					"NATSDialer", "Dial", "connect")
			}
			return nil, errors.WrapTransient(r.err, "NATSDialer", "Dial", "connect")
		}
		nc = r.nc
	case <-ctx.Done():
		go func() {
			if r := <-connectDone; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "NATSDialer", "Dial", "connect cancelled")
	}

	c.nc = nc
	c.writeTimeout = d.WriteTimeout
	if c.writeTimeout <= 0 {
		c.writeTimeout = 5 * time.Second
	}

	bufSize := d.ReadBuffer
	if bufSize <= 0 {
		bufSize = 1024
	}
	c.msgs = make(chan *nats.Msg, bufSize)

	if c.sub, err = nc.ChanSubscribe(c.down, c.msgs); err != nil {
		nc.Close()
		return nil, errors.WrapTransient(err, "NATSDialer", "Dial", "subscribe "+c.down)
	}

	if d.JetStream {
		if c.js, err = jetstream.New(nc); err != nil {
			nc.Close()
			return nil, errors.WrapFatal(err, "NATSDialer", "Dial", "create jetstream context")
		}
	}

	return c, nil
}

type natsConn struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	sub  *nats.Subscription
	msgs chan *nats.Msg

	up, down     string
	writeTimeout time.Duration

	done       chan struct{}
	doneOnce   sync.Once
	localClose atomic.Bool
	mu         sync.Mutex
	lastErr    error
}

func (c *natsConn) handleDisconnect(_ *nats.Conn, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *natsConn) handleClosed(_ *nats.Conn) {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *natsConn) ReadFrame() (Frame, error) {
	select {
	case msg := <-c.msgs:
		kind := FrameText
		if strings.EqualFold(msg.Header.Get(HeaderContentEncoding), "gzip") {
			kind = FrameBinary
		}
		return Frame{Kind: kind, Data: msg.Data}, nil
	case <-c.done:
		if c.localClose.Load() {
			return Frame{}, ErrPeerClosed
		}
		c.mu.Lock()
		cause := c.lastErr
		c.mu.Unlock()
		if cause == nil {
			cause = nats.ErrConnectionClosed
		}
		return Frame{}, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, cause),
			"natsConn", "ReadFrame", "read frame")
	}
}

func (c *natsConn) WriteFrame(f Frame) error {
	msg := nats.NewMsg(c.up)
	msg.Data = f.Data
	if f.Kind == FrameBinary {
		msg.Header.Set(HeaderContentEncoding, "gzip")
	}

	if c.js != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		defer cancel()
		if _, err := c.js.PublishMsg(ctx, msg); err != nil {
			return errors.WrapTransient(err, "natsConn", "WriteFrame", "jetstream publish")
		}
		return nil
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return errors.WrapTransient(err, "natsConn", "WriteFrame", "publish")
	}
	return nil
}

func (c *natsConn) Close() error {
	c.localClose.Store(true)
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.nc.Close()
	// ClosedHandler runs asynchronously; don't leave a reader waiting on it.
	c.doneOnce.Do(func() { close(c.done) })
	return nil
}
