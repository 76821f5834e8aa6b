package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/preview-relay/backoff"
	"github.com/adwski/preview-relay/model"
	"github.com/adwski/preview-relay/wsconn"
	"github.com/rs/zerolog"
)

// SubscriberConfig configures a hub subscription feeding one or more
// sessions.
type SubscriberConfig struct {
	Logger *zerolog.Logger

	// URL is the hub websocket endpoint.
	URL string

	// Dialer establishes connections. Optional.
	Dialer wsconn.Dialer

	// Backoff is the reconnect policy. Optional.
	Backoff backoff.Policy

	// OnFrame receives every well-formed frame the hub relays; channel
	// filtering happens in the sessions. Invoked from the subscriber's
	// goroutine.
	OnFrame func(model.FrameMessage)

	// OnStatus observes connection state changes. Optional.
	OnStatus func(model.Status)
}

// Subscriber maintains the viewer side of the hub connection with the same
// backoff law as the push client. Connectivity is advisory: sessions keep
// rendering whatever they have while disconnected.
type Subscriber struct {
	logger   zerolog.Logger
	url      string
	dialer   wsconn.Dialer
	policy   backoff.Policy
	onFrame  func(model.FrameMessage)
	onStatus func(model.Status)

	reconnect chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	status model.Status // owned by the run goroutine
}

func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = wsconn.GorillaDialer{}
	}
	return &Subscriber{
		logger: cfg.Logger.With().
			Str("component", "viewer-subscriber").
			Str("url", cfg.URL).Logger(),
		url:       cfg.URL,
		dialer:    dialer,
		policy:    cfg.Backoff,
		onFrame:   cfg.OnFrame,
		onStatus:  cfg.OnStatus,
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// SessionSubscriber wires a subscriber directly into a session's event
// entry point.
func SessionSubscriber(s *Session, cfg SubscriberConfig) *Subscriber {
	cfg.OnFrame = func(msg model.FrameMessage) {
		s.Dispatch(FrameEvent{Msg: msg})
	}
	cfg.OnStatus = func(status model.Status) {
		s.Dispatch(StatusEvent{Status: status})
	}
	return NewSubscriber(cfg)
}

func (s *Subscriber) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
}

// Reconnect resumes dialing after backoff exhaustion.
func (s *Subscriber) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}

func (s *Subscriber) run(ctx context.Context) {
	defer func() {
		s.setStatus(model.StatusDisconnected)
		close(s.done)
		s.logger.Debug().Msg("subscriber stopped")
	}()

	var attempts int
	for {
		if ctx.Err() != nil {
			return
		}
		s.setStatus(model.StatusConnecting)

		conn, err := s.dialer.Dial(ctx, s.url)
		if err == nil {
			attempts = 0
			s.setStatus(model.StatusConnected)
			s.logger.Info().Msg("connected")

			s.receive(ctx, conn)

			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Msg("connection closed")
		} else {
			s.logger.Warn().Err(err).Msg("connection failed")
		}

		attempts++
		if s.policy.Exhausted(attempts) {
			s.setStatus(model.StatusDisconnected)
			s.logger.Error().Int("attempts", attempts).Msg("reconnect attempts exhausted")
			select {
			case <-ctx.Done():
				return
			case <-s.reconnect:
				attempts = 0
			}
			continue
		}

		delay := s.policy.Delay(attempts)
		s.logger.Info().
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("reconnecting")
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-s.reconnect:
			t.Stop()
			attempts = 0
		case <-t.C:
		}
	}
}

// receive reads frames until the connection breaks or ctx is canceled.
func (s *Subscriber) receive(ctx context.Context, conn wsconn.Conn) {
	readDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()
	defer func() {
		close(readDone)
		_ = conn.Close()
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("receive failed")
			}
			return
		}
		msg, err := model.ParseFrameMessage(b)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if s.onFrame != nil {
			s.onFrame(msg)
		}
	}
}

func (s *Subscriber) setStatus(status model.Status) {
	if status == s.status {
		return
	}
	s.status = status
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
