package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/http-ssh-server/backend/internal/broker"
	"github.com/http-ssh-server/backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// WebSocketHandler accepts session connections and hands them to the broker.
type WebSocketHandler struct {
	broker *broker.Broker
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(b *broker.Broker) *WebSocketHandler {
	return &WebSocketHandler{broker: b}
}

// Connect handles GET /ws/:room_id - joins a room over WebSocket.
// A malformed room id is a client error: silently substituting a fresh room
// would strand the client alone in a room nobody else can name.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("room_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "INVALID_ROOM_ID", "Room ID must be a valid UUID")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	session := ws.NewConn(h.broker, roomID, conn)
	if err := session.Serve(); err != nil {
		log.Printf("ws: session %s registration failed: %v", session.ID(), err)
	}
}

// RegisterRoutes registers the WebSocket route on the root router.
func (h *WebSocketHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:room_id", h.Connect)
}
