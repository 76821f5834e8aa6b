package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adwski/preview-relay/backoff"
	"github.com/adwski/preview-relay/hub"
	"github.com/adwski/preview-relay/model"
	"github.com/adwski/preview-relay/pushclient"
	"github.com/adwski/preview-relay/viewer"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (string, *hub.Hub) {
	t.Helper()
	logger := zerolog.Nop()
	h := hub.New(&logger)
	srv := NewServer(Config{
		Logger:     &logger,
		Relay:      h,
		ListenAddr: ":0",
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", h
}

func dialPeer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) (model.FrameMessage, bool) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, b, err := conn.ReadMessage()
	if err != nil {
		return model.FrameMessage{}, false
	}
	msg, err := model.ParseFrameMessage(b)
	require.NoError(t, err)
	return msg, true
}

func sendFrame(t *testing.T, conn *websocket.Conn, msg model.FrameMessage) {
	t.Helper()
	b, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func waitPeers(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.NumPeers() == n },
		2*time.Second, 5*time.Millisecond)
}

func TestBroadcastReachesOtherPeers(t *testing.T) {
	url, h := startTestServer(t)

	sender := dialPeer(t, url)
	recvA := dialPeer(t, url)
	recvB := dialPeer(t, url)
	waitPeers(t, h, 3)

	msg := model.NewFrameMessage("chan-1", []byte("image bytes"))
	sendFrame(t, sender, msg)

	got, ok := readFrame(t, recvA, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	got, ok = readFrame(t, recvB, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	_, ok = readFrame(t, sender, 300*time.Millisecond)
	assert.False(t, ok, "sender must not get its own frame back")
}

func TestLateJoinerMissesEarlierBroadcast(t *testing.T) {
	url, h := startTestServer(t)

	sender := dialPeer(t, url)
	receiver := dialPeer(t, url)
	waitPeers(t, h, 2)

	sendFrame(t, sender, model.NewFrameMessage("chan-1", []byte("early")))
	_, ok := readFrame(t, receiver, 2*time.Second)
	require.True(t, ok)

	late := dialPeer(t, url)
	waitPeers(t, h, 3)

	_, ok = readFrame(t, late, 300*time.Millisecond)
	assert.False(t, ok, "no history or replay for late joiners")
}

func TestMalformedMessagesAreDroppedNotFatal(t *testing.T) {
	url, h := startTestServer(t)

	sender := dialPeer(t, url)
	receiver := dialPeer(t, url)
	waitPeers(t, h, 2)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"channel_id":""}`)))

	valid := model.NewFrameMessage("chan-1", []byte("good"))
	sendFrame(t, sender, valid)

	got, ok := readFrame(t, receiver, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, valid, got, "only the well-formed frame is relayed")
}

func TestDisconnectDetachesPeer(t *testing.T) {
	url, h := startTestServer(t)

	peer := dialPeer(t, url)
	waitPeers(t, h, 1)

	require.NoError(t, peer.Close())
	waitPeers(t, h, 0)
}

func TestPushClientToViewerSubscriberEndToEnd(t *testing.T) {
	url, h := startTestServer(t)
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		frames []model.FrameMessage
	)
	sub := viewer.NewSubscriber(viewer.SubscriberConfig{
		Logger:  &logger,
		URL:     url,
		Backoff: backoff.Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 10},
		OnFrame: func(msg model.FrameMessage) {
			mu.Lock()
			frames = append(frames, msg)
			mu.Unlock()
		},
	})
	sub.Start(ctx)
	defer sub.Close()

	manager := pushclient.NewManager(&logger)
	defer manager.Close()
	client := manager.Acquire(ctx, pushclient.Config{
		URL:     url,
		Backoff: backoff.Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, MaxAttempts: 10},
	})

	require.Eventually(t, client.Connected, 2*time.Second, 5*time.Millisecond)
	waitPeers(t, h, 2)

	msg := model.NewFrameMessage("chan-1", []byte("end to end"))
	client.Enqueue(msg)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, msg, frames[0])
}
