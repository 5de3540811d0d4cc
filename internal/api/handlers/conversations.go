package handlers

import (
	"errors"
	"net/http"

	"chat-gateway/internal/api/middleware"
	"chat-gateway/internal/models"
	"chat-gateway/internal/services"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversations *services.ConversationService
}

func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// CreateConversation makes a new group or channel owned by the caller.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.conversations.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListConversations returns the caller's conversations.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	resp, err := h.conversations.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DiscoverConversations lists joinable groups and channels.
func (h *ConversationHandler) DiscoverConversations(c *gin.Context) {
	resp, err := h.conversations.Discover(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// JoinConversation admits the caller when the presented room code matches.
func (h *ConversationHandler) JoinConversation(c *gin.Context) {
	var req models.JoinConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.conversations.JoinByCode(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Code)
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, services.ErrInvalidRoomCode):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid room code"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join conversation"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// DeleteConversation removes a conversation; owner only.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	err := h.conversations.DeleteConversation(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can delete a conversation"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
	}
}

// DirectConversation returns the direct conversation with another user,
// creating it on first use.
func (h *ConversationHandler) DirectConversation(c *gin.Context) {
	var req models.DirectConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.conversations.Direct(c.Request.Context(), middleware.UserID(c), req.UserID)
	switch {
	case errors.Is(err, services.ErrNotDirectable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open a direct conversation with yourself"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open direct conversation"})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// ListMembers returns the conversation's members to a member.
func (h *ConversationHandler) ListMembers(c *gin.Context) {
	members, err := h.conversations.Members(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
	default:
		c.JSON(http.StatusOK, members)
	}
}

// AddMember lets owners and admins add a user directly.
func (h *ConversationHandler) AddMember(c *gin.Context) {
	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.conversations.AddMember(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.UserID)
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only owners and admins can add members"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add member"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "member added"})
	}
}

// RemoveMember removes a member; members may remove themselves.
func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	err := h.conversations.RemoveMember(c.Request.Context(), c.Param("id"), middleware.UserID(c), c.Param("userId"))
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted to remove this member"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove member"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "member removed"})
	}
}

// LeaveConversation removes the caller from the conversation. Leaving a
// conversation you are not in is a no-op.
func (h *ConversationHandler) LeaveConversation(c *gin.Context) {
	userID := middleware.UserID(c)
	if err := h.conversations.RemoveMember(c.Request.Context(), c.Param("id"), userID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to leave conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left conversation"})
}

// GetCode returns the conversation's derived room code to a member.
func (h *ConversationHandler) GetCode(c *gin.Context) {
	code, err := h.conversations.Code(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this conversation"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to derive code"})
	default:
		c.JSON(http.StatusOK, gin.H{"code": code})
	}
}
