package transport

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/streamsync/errors"
)

// WebSocketDialer connects over gorilla/websocket. JSON goes out as text
// frames, compressed batches as binary frames.
type WebSocketDialer struct {
	// HandshakeTimeout applies when the context has no earlier deadline.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single frame write. Default 10s.
	WriteTimeout time.Duration
	// ReadLimit caps inbound frame size in bytes. Default MaxDecodedFrameSize.
	ReadLimit int64
	// EnableCompression negotiates permessage-deflate.
	EnableCompression bool
	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string
	Header      http.Header
	TLSConfig   *tls.Config
}

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = 45 * time.Second
	}

	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  handshake,
		EnableCompression: d.EnableCompression,
		TLSClientConfig:   d.TLSConfig,
	}

	header := http.Header{}
	for k, vs := range d.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	if d.BearerToken != "" {
		header.Set("Authorization", "Bearer "+d.BearerToken)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.WrapFatal(fmt.Errorf("%w: handshake status %d", errors.ErrUnauthorized, resp.StatusCode),
				"WebSocketDialer", "Dial", "websocket handshake")
		}
		return nil, errors.WrapTransient(err, "WebSocketDialer", "Dial", "websocket handshake")
	}

	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = MaxDecodedFrameSize
	}
	conn.SetReadLimit(readLimit)

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &wsConn{conn: conn, writeTimeout: writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadFrame() (Frame, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Frame{}, ErrPeerClosed
		}
		return Frame{}, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
			"wsConn", "ReadFrame", "read frame")
	}

	kind := FrameText
	if mt == websocket.BinaryMessage {
		kind = FrameBinary
	}
	return Frame{Kind: kind, Data: data}, nil
}

func (c *wsConn) WriteFrame(f Frame) error {
	mt := websocket.TextMessage
	if f.Kind == FrameBinary {
		mt = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(mt, f.Data); err != nil {
		return errors.WrapTransient(err, "wsConn", "WriteFrame", "write frame")
	}
	return nil
}

// Close sends a normal-closure control frame, best effort, then closes the
// socket. WriteControl is safe alongside a concurrent WriteMessage.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		if err := c.conn.Close(); err != nil && !stderrors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}
	})
	return c.closeErr
}
