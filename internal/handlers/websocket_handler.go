package handlers

import (
	"shieldpool/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades /ws/events requests onto the push service.
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleEvents GET /ws/events
// Clients receive every committed pool event, or only the kinds they
// subscribe to with {"action":"subscribe","kinds":[...]}.
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	h.pushService.HandleWebSocket(c.Writer, c.Request)
}
