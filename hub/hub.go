package hub

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/preview-relay/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = time.Second
)

// Hub is a connection-agnostic fan-out relay. Every well-formed message
// received from one peer is rebroadcast to every other peer attached at
// that instant. No history is kept and no server-side channel scoping is
// applied; receivers filter by channel on their side.
type Hub struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	peers  map[string]model.Wire
}

func New(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		mx:     &sync.RWMutex{},
		peers:  make(map[string]model.Wire),
	}
}

// Attach registers a peer and starts forwarding its inbound frames to all
// other peers. The forwarding loop runs until ctx is canceled.
func (h *Hub) Attach(ctx context.Context, peerID string, wire model.Wire) error {
	h.mx.Lock()
	defer func() {
		h.mx.Unlock()
		h.logger.Debug().
			Str("peerID", peerID).
			Msg("peer attached")
		go h.forwardFrames(ctx, peerID, wire.RX)
	}()

	h.peers[peerID] = wire
	return nil
}

// Detach removes a peer from the fan-out set. An in-flight broadcast may
// still complete a send to the peer's wire.
func (h *Hub) Detach(peerID string) error {
	h.mx.Lock()
	defer func() {
		h.mx.Unlock()
		h.logger.Debug().
			Str("peerID", peerID).
			Msg("peer detached")
	}()

	delete(h.peers, peerID)
	return nil
}

// NumPeers reports the current fan-out set size.
func (h *Hub) NumPeers() int {
	h.mx.RLock()
	defer h.mx.RUnlock()
	return len(h.peers)
}

func (h *Hub) forwardFrames(ctx context.Context, peerID string, rx <-chan model.FrameMessage) {
fwdLoop:
	for {
		select {
		case <-ctx.Done():
			break fwdLoop
		case msg := <-rx:
			if !h.Broadcast(ctx, msg, peerID) {
				h.logger.Debug().
					Str("peerID", peerID).
					Str("channelID", msg.ChannelID).
					Msg("incoming frame was dropped, nowhere to forward")
			}
		}
	}
}

// Broadcast delivers msg to every peer attached at this instant except the
// originator. The peer set is snapshotted so concurrent attach/detach never
// interferes with an in-flight broadcast; a slow or dead peer only costs the
// send timeout for its own delivery and never breaks delivery to others.
func (h *Hub) Broadcast(ctx context.Context, msg model.FrameMessage, fromPeer string) bool {
	h.mx.RLock()
	targets := make(map[string]model.Wire, len(h.peers))
	for id, wire := range h.peers {
		if id != fromPeer {
			targets[id] = wire
		}
	}
	h.mx.RUnlock()

	var sent bool
	for id, wire := range targets {
		frameSent, canceled := send(ctx, msg, id, wire.TX, &h.logger)
		if canceled {
			break
		}
		if frameSent {
			sent = true
		}
	}
	return sent
}

func send(
	ctx context.Context,
	msg model.FrameMessage,
	dst string,
	tx chan<- model.FrameMessage,
	logger *zerolog.Logger,
) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("dst", dst).Msg("dead peer")
	case tx <- msg:
		logger.Trace().Str("dst", dst).Str("channelID", msg.ChannelID).Msg("frame is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
