// Package pushclient delivers frames from a producing process to the relay
// hub. Producers enqueue frames without ever blocking on network I/O: the
// connection lives on a background goroutine, transport errors are swallowed
// and recovered via exponential backoff, and frames that cannot be sent right
// now are dropped (at-most-once, freshest-wins).
package pushclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adwski/preview-relay/backoff"
	"github.com/adwski/preview-relay/model"
	"github.com/adwski/preview-relay/wsconn"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultQueueSize = 64
)

type Config struct {
	Logger *zerolog.Logger

	// URL is the hub websocket endpoint.
	URL string

	// Dialer establishes connections. Optional; defaults to a real
	// websocket dialer.
	Dialer wsconn.Dialer

	// QueueSize bounds the producer handoff queue. Optional.
	QueueSize int

	// Backoff is the reconnect policy. Optional.
	Backoff backoff.Policy

	// OnStatus observes connection state changes. Optional; invoked from
	// the client's goroutine and must not block.
	OnStatus func(model.Status)
}

type Client struct {
	logger   zerolog.Logger
	url      string
	dialer   wsconn.Dialer
	policy   backoff.Policy
	onStatus func(model.Status)

	queue     chan model.FrameMessage
	reconnect chan struct{}
	connected atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	status model.Status // owned by the run goroutine
}

func New(cfg Config) *Client {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = wsconn.GorillaDialer{}
	}
	return &Client{
		logger: cfg.Logger.With().
			Str("component", "push-client").
			Str("url", cfg.URL).Logger(),
		url:       cfg.URL,
		dialer:    dialer,
		policy:    cfg.Backoff,
		onStatus:  cfg.OnStatus,
		queue:     make(chan model.FrameMessage, queueSize),
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the network loop. Safe to call more than once.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
	})
}

// Enqueue hands a frame to the network loop. It never blocks and never
// returns an error: while disconnected, or when the handoff queue is full,
// the frame is silently dropped.
func (c *Client) Enqueue(frame model.FrameMessage) {
	if !c.connected.Load() {
		return
	}
	select {
	case c.queue <- frame:
	default:
	}
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Reconnect resumes dialing after backoff exhaustion and resets the attempt
// counter. No-op while the loop is not waiting on it.
func (c *Client) Reconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

// Close stops the network loop. Frames still queued at close time are
// flushed if a connection is up.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
	})
}

func (c *Client) run(ctx context.Context) {
	defer func() {
		c.connected.Store(false)
		c.setStatus(model.StatusDisconnected)
		close(c.done)
		c.logger.Debug().Msg("push client stopped")
	}()

	var attempts int
	for {
		if ctx.Err() != nil {
			return
		}
		c.setStatus(model.StatusConnecting)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err == nil {
			attempts = 0
			c.connected.Store(true)
			c.setStatus(model.StatusConnected)
			c.logger.Info().Msg("connected")

			c.serve(ctx, conn)

			c.connected.Store(false)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Msg("connection closed")
		} else {
			c.logger.Warn().Err(err).Msg("connection failed")
		}

		attempts++
		if c.policy.Exhausted(attempts) {
			c.setStatus(model.StatusDisconnected)
			c.logger.Error().Int("attempts", attempts).Msg("reconnect attempts exhausted")
			select {
			case <-ctx.Done():
				return
			case <-c.reconnect:
				attempts = 0
			}
			continue
		}

		delay := c.policy.Delay(attempts)
		c.logger.Info().
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("reconnecting")
		// The pending reconnect timer is the only cancellable scheduled
		// operation: an external trigger or teardown preempts it.
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-c.reconnect:
			t.Stop()
			attempts = 0
		case <-t.C:
		}
	}
}

// serve drains the handoff queue into conn until the connection breaks or
// ctx is canceled. A reader goroutine exists only to detect peer closes.
func (c *Client) serve(ctx context.Context, conn wsconn.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.flush(conn)
			return
		case err := <-readErr:
			c.logger.Warn().Err(err).Msg("receive side closed")
			return
		case msg := <-c.queue:
			if !c.send(conn, msg) {
				return
			}
		}
	}
}

// send transmits one frame. Returns false when the connection is unusable.
func (c *Client) send(conn wsconn.Conn, msg model.FrameMessage) bool {
	b, err := msg.Encode()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshall outgoing frame")
		return true
	}
	if err = conn.SetWriteDeadline(time.Now().Add(wsconn.DefaultWriteDeadline)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set write deadline")
		return false
	}
	if err = conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send frame")
		return false
	}
	return true
}

func (c *Client) flush(conn wsconn.Conn) {
	for {
		select {
		case msg := <-c.queue:
			if !c.send(conn, msg) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) setStatus(s model.Status) {
	if s == c.status {
		return
	}
	c.status = s
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
