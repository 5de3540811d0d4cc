package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"chat-gateway/internal/models"
	"chat-gateway/internal/websocket"

	"gorm.io/gorm"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]+)`)

// ErrMessageNotFound rejects an operation on a message that does not exist or
// is not in the conversation the caller named.
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the message persistence surface the chat service
// writes through.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, messageID string) (*models.Message, error)
	History(ctx context.Context, conversationID, viewerID string, page, pageSize int) (*models.MessageHistoryResponse, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) (added bool, err error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (removed bool, err error)
	MarkRead(ctx context.Context, messageID, userID string) error
	AddMentions(ctx context.Context, messageID string, userIDs []string) error
}

// MembershipReader answers the membership questions the chat service gates
// its writes on.
type MembershipReader interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	MemberIDs(ctx context.Context, conversationID string) ([]string, error)
}

// UserReader resolves senders and @mention targets.
type UserReader interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	FindByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
}

// ChatService persists messages, reactions and read receipts. It implements
// the gateway's MessageStore collaborator: the hub only broadcasts payloads
// this service has already committed.
type ChatService struct {
	messages      MessageRepository
	conversations MembershipReader
	users         UserReader
}

func NewChatService(messages MessageRepository, conversations MembershipReader, users UserReader) *ChatService {
	return &ChatService{
		messages:      messages,
		conversations: conversations,
		users:         users,
	}
}

// SaveMessage persists a new message for senderID and returns the broadcast
// payload along with the IDs of mentioned conversation members.
func (s *ChatService) SaveMessage(ctx context.Context, senderID string, in websocket.SendMessageInput) (*websocket.MessagePayload, []string, error) {
	ok, err := s.conversations.IsMember(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: membership check: %v", websocket.ErrTransientDependency, err)
	}
	if !ok {
		return nil, nil, websocket.ErrNotAMember
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sender: %w", err)
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        in.Content,
		Metadata:       in.Metadata,
	}
	if in.ParentMessageID != "" {
		msg.ParentMessageID = &in.ParentMessageID
	}
	if in.EphemeralSeconds > 0 {
		expires := time.Now().UTC().Add(time.Duration(in.EphemeralSeconds) * time.Second)
		msg.EphemeralExpiresAt = &expires
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	mentioned, err := s.extractMentions(ctx, msg, senderID)
	if err != nil {
		// The message is committed; a failed mention lookup must not fail
		// the send.
		mentioned = nil
	}

	payload := &websocket.MessagePayload{
		ID:                 msg.ID,
		ConversationID:     msg.ConversationID,
		SenderID:           msg.SenderID,
		SenderUsername:     sender.Username,
		SenderDisplayName:  sender.DisplayName,
		SenderAvatarURL:    sender.AvatarURL,
		Content:            msg.Content,
		Type:               msg.Type,
		CreatedAt:          msg.CreatedAt,
		EphemeralExpiresAt: msg.EphemeralExpiresAt,
		Metadata:           msg.Metadata,
	}
	if msg.ParentMessageID != nil {
		payload.ParentMessageID = *msg.ParentMessageID
	}
	return payload, mentioned, nil
}

// extractMentions resolves @username tokens in the content to conversation
// members, records them, and returns the mentioned user IDs. The sender
// never mentions themselves.
func (s *ChatService) extractMentions(ctx context.Context, msg *models.Message, senderID string) ([]string, error) {
	matches := mentionPattern.FindAllStringSubmatch(msg.Content, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	usernames := make([]string, 0, len(matches))
	for _, match := range matches {
		usernames = append(usernames, match[1])
	}

	users, err := s.users.FindByUsernames(ctx, usernames)
	if err != nil {
		return nil, err
	}

	memberIDs, err := s.conversations.MemberIDs(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	members := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}

	var mentioned []string
	for _, user := range users {
		if user.ID == senderID {
			continue
		}
		if _, ok := members[user.ID]; ok {
			mentioned = append(mentioned, user.ID)
		}
	}

	if err := s.messages.AddMentions(ctx, msg.ID, mentioned); err != nil {
		return nil, err
	}
	return mentioned, nil
}

// memberMessage loads a message and verifies the acting user belongs to its
// conversation. Every reaction and read-receipt write goes through here.
func (s *ChatService) memberMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("%w: load message: %v", websocket.ErrTransientDependency, err)
	}

	ok, err := s.conversations.IsMember(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: membership check: %v", websocket.ErrTransientDependency, err)
	}
	if !ok {
		return nil, websocket.ErrNotAMember
	}
	return msg, nil
}

// MarkRead records a read receipt for a message that actually lives in
// conversationID; a receipt naming the wrong conversation is rejected so it
// can neither be recorded nor broadcast elsewhere. Duplicate receipts are a
// no-op.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, messageID, userID string) error {
	msg, err := s.memberMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return fmt.Errorf("%w: %s is not in conversation %s", ErrMessageNotFound, messageID, conversationID)
	}
	if err := s.messages.MarkRead(ctx, messageID, userID); err != nil {
		return fmt.Errorf("%w: mark read: %v", websocket.ErrTransientDependency, err)
	}
	return nil
}

// React adds a reaction for a member of the message's conversation and
// reports the owning conversation so the caller can broadcast the change.
// Added is false for duplicate reactions.
func (s *ChatService) React(ctx context.Context, messageID, userID, emoji string) (conversationID string, added bool, err error) {
	msg, err := s.memberMessage(ctx, messageID, userID)
	if err != nil {
		return "", false, err
	}
	added, err = s.messages.AddReaction(ctx, messageID, userID, emoji)
	return msg.ConversationID, added, err
}

// Unreact removes a reaction, gated like React; removing an absent reaction
// is a no-op.
func (s *ChatService) Unreact(ctx context.Context, messageID, userID, emoji string) (conversationID string, removed bool, err error) {
	msg, err := s.memberMessage(ctx, messageID, userID)
	if err != nil {
		return "", false, err
	}
	removed, err = s.messages.RemoveReaction(ctx, messageID, userID, emoji)
	return msg.ConversationID, removed, err
}

// History returns a page of a conversation's messages for a member.
func (s *ChatService) History(ctx context.Context, conversationID, viewerID string, page, pageSize int) (*models.MessageHistoryResponse, error) {
	ok, err := s.conversations.IsMember(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, websocket.ErrNotAMember
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return s.messages.History(ctx, conversationID, viewerID, page, pageSize)
}
