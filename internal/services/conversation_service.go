package services

import (
	"context"
	"errors"
	"fmt"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories/postgres"
	"chat-gateway/internal/roomcode"

	"gorm.io/gorm"
)

var (
	ErrForbidden       = errors.New("operation not permitted for this member")
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrNotFound        = errors.New("conversation not found")
	ErrNotDirectable   = errors.New("cannot open a direct conversation with yourself")
)

// ConversationService owns conversation lifecycle and membership management.
// Membership writes land here; the gateway reads them back through the
// repository's directory methods.
type ConversationService struct {
	conversations *postgres.ConversationRepository
	users         *postgres.UserRepository
	codes         *roomcode.Deriver
}

func NewConversationService(conversations *postgres.ConversationRepository, users *postgres.UserRepository, codes *roomcode.Deriver) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		users:         users,
		codes:         codes,
	}
}

// Create makes a new group or channel with the creator as owner. The room
// code is derived, never stored.
func (s *ConversationService) Create(ctx context.Context, creatorID string, req *models.CreateConversationRequest) (*models.ConversationResponse, error) {
	conv := &models.Conversation{
		Name: req.Name,
		Type: req.Type,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	if err := s.conversations.AddMember(ctx, &models.ConversationMember{
		ConversationID: conv.ID,
		UserID:         creatorID,
		Role:           models.RoleOwner,
	}); err != nil {
		return nil, fmt.Errorf("add owner: %w", err)
	}

	for _, memberID := range req.Members {
		if memberID == creatorID {
			continue
		}
		if err := s.conversations.AddMember(ctx, &models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         memberID,
			Role:           models.RoleMember,
		}); err != nil {
			return nil, fmt.Errorf("add member %s: %w", memberID, err)
		}
	}

	return &models.ConversationResponse{
		ID:   conv.ID,
		Name: conv.Name,
		Type: conv.Type,
		Code: s.codes.Generate(conv.ID),
	}, nil
}

// List returns the conversations the user belongs to.
func (s *ConversationService) List(ctx context.Context, userID string) ([]models.ConversationResponse, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, models.ConversationResponse{ID: conv.ID, Name: conv.Name, Type: conv.Type})
	}
	return out, nil
}

// Discover returns the channels open for join-by-code, regardless of the
// caller's membership.
func (s *ConversationService) Discover(ctx context.Context) ([]models.ConversationResponse, error) {
	convs, err := s.conversations.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		if conv.Type == models.ConversationTypeDirect {
			continue
		}
		out = append(out, models.ConversationResponse{ID: conv.ID, Name: conv.Name, Type: conv.Type})
	}
	return out, nil
}

// JoinByCode admits the user to a conversation when the presented code
// matches the derived one. Joining a conversation you already belong to is a
// no-op.
func (s *ConversationService) JoinByCode(ctx context.Context, conversationID, userID, code string) (*models.ConversationResponse, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !s.codes.Validate(conversationID, code) {
		return nil, ErrInvalidRoomCode
	}

	if err := s.conversations.AddMember(ctx, &models.ConversationMember{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleMember,
	}); err != nil {
		return nil, fmt.Errorf("join conversation: %w", err)
	}

	return &models.ConversationResponse{ID: conv.ID, Name: conv.Name, Type: conv.Type}, nil
}

// DeleteConversation removes a conversation and its membership records. Only
// the owner may delete.
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID, actorID string) error {
	if err := s.requireRole(ctx, conversationID, actorID, models.RoleOwner); err != nil {
		return err
	}
	return s.conversations.Delete(ctx, conversationID)
}

// Direct returns the direct conversation between the two users, creating it
// on first use.
func (s *ConversationService) Direct(ctx context.Context, userID, otherID string) (*models.ConversationResponse, error) {
	if userID == otherID {
		return nil, ErrNotDirectable
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if conv, err := s.conversations.FindDirect(ctx, userID, otherID); err == nil {
		return &models.ConversationResponse{ID: conv.ID, Name: conv.Name, Type: conv.Type}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv := &models.Conversation{Type: models.ConversationTypeDirect, Name: "direct"}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create direct conversation: %w", err)
	}
	for _, id := range []string{userID, otherID} {
		if err := s.conversations.AddMember(ctx, &models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           models.RoleMember,
		}); err != nil {
			return nil, fmt.Errorf("add direct member: %w", err)
		}
	}
	return &models.ConversationResponse{ID: conv.ID, Name: conv.Name, Type: conv.Type}, nil
}

// AddMember lets owners and admins add a user directly, bypassing the room
// code.
func (s *ConversationService) AddMember(ctx context.Context, conversationID, actorID, userID string) error {
	if err := s.requireRole(ctx, conversationID, actorID, models.RoleOwner, models.RoleAdmin); err != nil {
		return err
	}
	return s.conversations.AddMember(ctx, &models.ConversationMember{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleMember,
	})
}

// RemoveMember removes a user from the conversation. Members can remove
// themselves; removing anyone else takes owner or admin role.
func (s *ConversationService) RemoveMember(ctx context.Context, conversationID, actorID, userID string) error {
	if actorID != userID {
		if err := s.requireRole(ctx, conversationID, actorID, models.RoleOwner, models.RoleAdmin); err != nil {
			return err
		}
	}
	return s.conversations.RemoveMember(ctx, conversationID, userID)
}

// Members lists the conversation's membership; only members may look.
func (s *ConversationService) Members(ctx context.Context, conversationID, viewerID string) ([]models.MemberResponse, error) {
	ok, err := s.conversations.IsMember(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.conversations.Members(ctx, conversationID)
}

// Code returns the conversation's derived room code to a member.
func (s *ConversationService) Code(ctx context.Context, conversationID, viewerID string) (string, error) {
	ok, err := s.conversations.IsMember(ctx, conversationID, viewerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrForbidden
	}
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return s.codes.Generate(conversationID), nil
}

func (s *ConversationService) requireRole(ctx context.Context, conversationID, userID string, roles ...string) error {
	role, err := s.conversations.MemberRole(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrForbidden
		}
		return err
	}
	for _, allowed := range roles {
		if role == allowed {
			return nil
		}
	}
	return ErrForbidden
}
