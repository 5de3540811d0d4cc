package handlers

import (
	"net/http"

	"chat-gateway/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	presence *services.PresenceService
}

func NewUserHandler(presence *services.PresenceService) *UserHandler {
	return &UserHandler{presence: presence}
}

// GetPresence reports whether a user is online and, if not, when they were
// last seen.
func (h *UserHandler) GetPresence(c *gin.Context) {
	resp, err := h.presence.Presence(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up presence"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
