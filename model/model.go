package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrMalformed = errors.New("malformed frame message")
)

// FrameMessage is one transmitted preview frame: an encoded image plus the
// channel it belongs to. Timestamp is display/diagnostic only, receivers
// never reorder or discard based on it.
type FrameMessage struct {
	ChannelID string `json:"channel_id"`
	ImageWebP string `json:"image_webp"` // base64, no data URI prefix
	Timestamp int64  `json:"timestamp"`  // unix ms
}

// NewFrameMessage wraps raw encoded image bytes into a frame for channelID,
// stamped with the current time.
func NewFrameMessage(channelID string, payload []byte) FrameMessage {
	return FrameMessage{
		ChannelID: channelID,
		ImageWebP: base64.StdEncoding.EncodeToString(payload),
		Timestamp: time.Now().UnixMilli(),
	}
}

// ParseFrameMessage decodes and validates a wire envelope.
func ParseFrameMessage(b []byte) (FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return FrameMessage{}, errors.Join(ErrMalformed, err)
	}
	if !msg.Valid() {
		return FrameMessage{}, ErrMalformed
	}
	return msg, nil
}

func (m FrameMessage) Valid() bool {
	return m.ChannelID != "" && m.ImageWebP != ""
}

func (m FrameMessage) Encode() ([]byte, error) {
	return json.Marshal(&m)
}

// Payload returns the decoded image bytes.
func (m FrameMessage) Payload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(m.ImageWebP)
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return b, nil
}

// Wire is a channel pair between one transport connection and the hub.
type Wire struct {
	RX chan FrameMessage
	TX chan FrameMessage
}

func NewWire() Wire {
	return Wire{
		RX: make(chan FrameMessage),
		TX: make(chan FrameMessage),
	}
}

// Status describes connection state of a push client or viewer subscriber.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
