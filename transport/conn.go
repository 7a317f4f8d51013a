package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/c360/streamsync/errors"
)

// ErrPeerClosed is returned by Conn.ReadFrame when the remote side closed
// the connection cleanly. Any other read error is treated as unclean.
var ErrPeerClosed = stderrors.New("peer closed connection")

// Conn is one live, full-duplex connection.
//
// ReadFrame is called from a single goroutine and WriteFrame from another;
// Close may be called from anywhere and must unblock a pending ReadFrame.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(f Frame) error
	Close() error
}

// Dialer opens a Conn. The context bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// ParseAddress validates a transport URL and returns its lower-cased scheme.
func ParseAddress(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidAddress, "transport", "ParseAddress", "empty address")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidAddress, err),
			"transport", "ParseAddress", "parse address")
	}
	if u.Host == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing host in %q", errors.ErrInvalidAddress, raw),
			"transport", "ParseAddress", "parse address")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// DialerForURL picks a transport by URL scheme: ws/wss use WebSocketDialer,
// nats/tls use NATSDialer.
func DialerForURL(raw string) (Dialer, error) {
	u, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "ws", "wss":
		return &WebSocketDialer{}, nil
	case "nats", "tls":
		return &NATSDialer{}, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidAddress, u.Scheme),
			"transport", "DialerForURL", "select dialer")
	}
}
