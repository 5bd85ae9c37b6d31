package ws

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/http-ssh-server/backend/internal/broker"
	"github.com/http-ssh-server/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// How often the liveness check compares "now" against the last
	// heartbeat.
	defaultHeartbeatInterval = 5 * time.Second

	// A peer silent for longer than this is considered dead.
	defaultClientTimeout = 10 * time.Second

	// Period of the application-level keepalive ping.
	defaultKeepalivePeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound queue depth per session.
	sendBufferSize = 256
)

// ServerID identifies this service in keepalive pings.
const ServerID = "http-ssh-server"

// frame is one queued outbound WebSocket frame.
type frame struct {
	messageType int
	data        []byte
}

// Conn is the session actor for one live connection. It registers with the
// broker on start, pumps frames in both directions, and guarantees exactly
// one Disconnect on every exit path.
type Conn struct {
	id     uuid.UUID
	room   uuid.UUID
	broker *broker.Broker
	ws     *websocket.Conn

	send chan frame

	// Timer intervals, fixed at construction. Tests shorten them.
	heartbeatInterval time.Duration
	clientTimeout     time.Duration
	keepalivePeriod   time.Duration

	mu     sync.Mutex
	closed bool

	// lastHeartbeat is the UnixNano of the most recent sign of life from
	// the peer. Written by the read pump, read by the write pump's liveness
	// ticker.
	lastHeartbeat atomic.Int64

	disconnectOnce sync.Once
}

// NewConn creates the session actor for an upgraded connection. A fresh
// session id is assigned here.
func NewConn(b *broker.Broker, room uuid.UUID, ws *websocket.Conn) *Conn {
	c := &Conn{
		id:                uuid.New(),
		room:              room,
		broker:            b,
		ws:                ws,
		send:              make(chan frame, sendBufferSize),
		heartbeatInterval: defaultHeartbeatInterval,
		clientTimeout:     defaultClientTimeout,
		keepalivePeriod:   defaultKeepalivePeriod,
	}
	c.touch()
	return c
}

// ID returns the session id.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Deliver implements broker.Recipient. It enqueues a text frame without
// blocking; a closed session or a full queue is reported as an error for the
// broker to log.
func (c *Conn) Deliver(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	select {
	case c.send <- frame{messageType: websocket.TextMessage, data: message}:
		return nil
	default:
		return model.ErrSendBufferFull
	}
}

// Serve registers the session with the broker and runs the pumps. It returns
// an error only when registration fails; otherwise it blocks until the
// connection terminates.
func (c *Conn) Serve() error {
	if err := c.broker.Connect(c.id, c.room, c); err != nil {
		c.ws.Close()
		return err
	}

	go c.writePump()
	c.readPump()
	return nil
}

func (c *Conn) touch() {
	c.lastHeartbeat.Store(time.Now().UnixNano())
}

func (c *Conn) sinceHeartbeat() time.Duration {
	return time.Since(time.Unix(0, c.lastHeartbeat.Load()))
}

// disconnect notifies the broker exactly once and closes the outbound queue.
func (c *Conn) disconnect() {
	c.disconnectOnce.Do(func() {
		c.broker.Disconnect(c.id, c.room)
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

// readPump pumps frames from the peer. Transport pings and pongs refresh the
// heartbeat; text frames are decoded just enough to answer application
// ping/pong locally, and everything else goes to the broker verbatim.
func (c *Conn) readPump() {
	defer func() {
		c.disconnect()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPingHandler(func(appData string) error {
		c.touch()
		// WriteControl is safe alongside the write pump; WriteMessage from
		// this goroutine is not.
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("ws: session %s protocol error: %v", c.id, err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleText(string(data))
		case websocket.BinaryMessage:
			// Binary frames are not interpreted; echo them back.
			c.enqueue(frame{messageType: websocket.BinaryMessage, data: data})
		}
	}
}

func (c *Conn) handleText(raw string) {
	switch model.DecodeInbound(raw).Kind {
	case model.InboundPing:
		c.touch()
		c.enqueue(frame{messageType: websocket.TextMessage, data: model.NewServerPong(ServerID)})
	case model.InboundPong:
		c.touch()
	default:
		c.broker.ClientMessage(c.id, c.room, raw)
	}
}

func (c *Conn) enqueue(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		log.Printf("ws: session %s send buffer full, dropping frame", c.id)
	}
}

// writePump pumps queued frames to the peer and owns the session's two
// timers: the liveness check and the keepalive ping. Both stop on every exit
// path.
func (c *Conn) writePump() {
	liveness := time.NewTicker(c.heartbeatInterval)
	keepalive := time.NewTicker(c.keepalivePeriod)
	defer func() {
		liveness.Stop()
		keepalive.Stop()
		c.disconnect()
		c.ws.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(f.messageType, f.data); err != nil {
				return
			}

		case <-liveness.C:
			if c.sinceHeartbeat() > c.clientTimeout {
				log.Printf("ws: session %s heartbeat timed out, disconnecting", c.id)
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte("PING")); err != nil {
				return
			}

		case <-keepalive.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, model.NewServerPing(ServerID)); err != nil {
				return
			}
		}
	}
}
