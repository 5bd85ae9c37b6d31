package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName identifies this service in the health response.
const ServiceName = "http-ssh-server"

// HealthHandler serves the service status endpoint.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health handles GET /health - a stateless status read with no broker
// interaction.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"service":             ServiceName,
		"timestamp":           time.Now().Unix(),
		"websocket_available": true,
		"websocket_endpoint":  "/ws/{room_id}",
	})
}

// RegisterRoutes registers the health route on the root router.
func (h *HealthHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
}
