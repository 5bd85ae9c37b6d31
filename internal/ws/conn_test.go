package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/http-ssh-server/backend/internal/broker"
	"github.com/http-ssh-server/backend/internal/model"
	"github.com/http-ssh-server/backend/internal/shell"
)

func testBroker(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New(shell.New(time.Second), nil, broker.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return b
}

func TestDeliverQueuesTextFrame(t *testing.T) {
	c := NewConn(testBroker(t), uuid.New(), nil)

	require.NoError(t, c.Deliver([]byte("hello")))

	f := <-c.send
	assert.Equal(t, "hello", string(f.data))
}

func TestDeliverAfterDisconnectFails(t *testing.T) {
	c := NewConn(testBroker(t), uuid.New(), nil)
	c.disconnect()

	err := c.Deliver([]byte("late"))
	assert.ErrorIs(t, err, model.ErrSessionClosed)
}

func TestDeliverFullBufferFails(t *testing.T) {
	c := NewConn(testBroker(t), uuid.New(), nil)
	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, c.Deliver([]byte("x")))
	}

	err := c.Deliver([]byte("overflow"))
	assert.ErrorIs(t, err, model.ErrSendBufferFull)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := NewConn(testBroker(t), uuid.New(), nil)

	c.disconnect()
	// A second disconnect must not close the channel again or panic.
	c.disconnect()
}

func TestSilentPeerIsDisconnected(t *testing.T) {
	b := testBroker(t)
	room := uuid.New()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	served := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn(b, room, wsConn)
		c.heartbeatInterval = 20 * time.Millisecond
		c.clientTimeout = 100 * time.Millisecond
		c.keepalivePeriod = time.Hour
		c.Serve()
		close(served)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Swallow transport pings instead of answering them, so the peer looks
	// dead while still reading frames.
	conn.SetPingHandler(func(string) error { return nil })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after heartbeat timeout")
	}

	stats, err := b.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sessions)
	assert.Empty(t, stats.RoomSizes)
}

func TestHeartbeatTouch(t *testing.T) {
	c := NewConn(testBroker(t), uuid.New(), nil)

	c.lastHeartbeat.Store(time.Now().Add(-time.Minute).UnixNano())
	assert.Greater(t, c.sinceHeartbeat(), c.clientTimeout)

	c.touch()
	assert.Less(t, c.sinceHeartbeat(), time.Second)
}
