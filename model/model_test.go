package model

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameMessage(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	msg := NewFrameMessage("chan-1", payload)
	require.True(t, msg.Valid())
	require.NotZero(t, msg.Timestamp)

	b, err := msg.Encode()
	require.NoError(t, err)

	parsed, err := ParseFrameMessage(b)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)

	got, err := parsed.Payload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestParseFrameMessageMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not a json at all"},
		{"wrong type", `["channel_id"]`},
		{"empty channel", `{"channel_id":"","image_webp":"aGk=","timestamp":1}`},
		{"missing image", `{"channel_id":"x","timestamp":1}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrameMessage([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestPayloadBadBase64(t *testing.T) {
	msg := FrameMessage{ChannelID: "x", ImageWebP: "@@@not-base64@@@", Timestamp: 1}
	_, err := msg.Payload()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPayloadRoundTrip(t *testing.T) {
	payload := []byte("encoded image bytes")
	msg := FrameMessage{
		ChannelID: "x",
		ImageWebP: base64.StdEncoding.EncodeToString(payload),
		Timestamp: 42,
	}
	got, err := msg.Payload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
