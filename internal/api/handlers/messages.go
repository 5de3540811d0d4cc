package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"chat-gateway/internal/adapters/database"
	"chat-gateway/internal/api/middleware"
	"chat-gateway/internal/models"
	"chat-gateway/internal/services"
	"chat-gateway/internal/websocket"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	chat    *services.ChatService
	hub     *websocket.Hub
	storage *database.MinIOClient
}

func NewMessageHandler(chat *services.ChatService, hub *websocket.Hub, storage *database.MinIOClient) *MessageHandler {
	return &MessageHandler{
		chat:    chat,
		hub:     hub,
		storage: storage,
	}
}

// SendMessage persists a message over HTTP and fans it out to live
// connections, mirroring the websocket message.send action.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := middleware.UserID(c)
	ctx := c.Request.Context()

	payload, mentioned, err := h.chat.SaveMessage(ctx, senderID, websocket.SendMessageInput{
		ConversationID:   req.ConversationID,
		Content:          req.Content,
		Type:             req.Type,
		ParentMessageID:  req.ParentMessageID,
		EphemeralSeconds: req.EphemeralSeconds,
		Metadata:         req.Metadata,
	})
	switch {
	case errors.Is(err, websocket.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	case errors.Is(err, websocket.ErrTransientDependency):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	if err := h.hub.Broadcast(ctx, payload); err != nil && !errors.Is(err, websocket.ErrNotAMember) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message stored but delivery is degraded"})
		return
	}
	for _, userID := range mentioned {
		h.hub.NotifyMention(ctx, userID, payload)
	}

	c.JSON(http.StatusCreated, payload)
}

// GetHistory returns a page of a conversation's messages.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))

	resp, err := h.chat.History(c.Request.Context(), c.Param("id"), middleware.UserID(c), page, pageSize)
	switch {
	case errors.Is(err, websocket.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// AddReaction records a reaction and broadcasts the change to the
// conversation. Reacting twice with the same emoji is a no-op.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	var req models.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.UserID(c)
	messageID := c.Param("id")
	ctx := c.Request.Context()

	conversationID, added, err := h.chat.React(ctx, messageID, userID, req.Emoji)
	switch {
	case errors.Is(err, websocket.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	case errors.Is(err, websocket.ErrTransientDependency):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add reaction"})
		return
	}
	if added {
		h.hub.BroadcastEvent(ctx, conversationID,
			websocket.NewReactionEvent(conversationID, messageID, userID, req.Emoji, "add"))
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// RemoveReaction removes a reaction; removing an absent one is a no-op.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	userID := middleware.UserID(c)
	messageID := c.Param("id")
	emoji := c.Param("emoji")
	ctx := c.Request.Context()

	conversationID, removed, err := h.chat.Unreact(ctx, messageID, userID, emoji)
	switch {
	case errors.Is(err, websocket.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
		return
	case errors.Is(err, services.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	case errors.Is(err, websocket.ErrTransientDependency):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove reaction"})
		return
	}
	if removed {
		h.hub.BroadcastEvent(ctx, conversationID,
			websocket.NewReactionEvent(conversationID, messageID, userID, emoji, "remove"))
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// UploadAttachment stores an uploaded file and returns its URL for use in a
// subsequent message.
func (h *MessageHandler) UploadAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	attachment, err := h.storage.UploadAttachment(c.Request.Context(), file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store attachment"})
		return
	}
	c.JSON(http.StatusCreated, attachment)
}
