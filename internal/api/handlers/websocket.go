package handlers

import (
	"errors"
	"net/http"

	"chat-gateway/internal/api/middleware"
	"chat-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades the connection and registers the client under the
// authenticated user.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	websocket.ServeWS(h.hub, c.Writer, c.Request, userID)
}

// GetCallState reports the conversation's active call and its participants so
// clients can render a join prompt without waiting for the next lifecycle
// event.
func (h *WSHandler) GetCallState(c *gin.Context) {
	active, participants, err := h.hub.CallState(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	switch {
	case errors.Is(err, websocket.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
	case errors.Is(err, websocket.ErrTransientDependency):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load call state"})
	default:
		if participants == nil {
			participants = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"active": active, "participants": participants})
	}
}
