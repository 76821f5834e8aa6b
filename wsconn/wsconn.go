// Package wsconn abstracts websocket connection establishment so the push
// client and viewer subscriber can be exercised in tests without a network.
package wsconn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 3 * time.Second
	DefaultWriteDeadline    = 5 * time.Second
)

// Conn is the subset of a websocket connection the clients use.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer establishes outbound connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials real websocket connections.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
