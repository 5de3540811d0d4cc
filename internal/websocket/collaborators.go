package websocket

import (
	"context"
	"time"
)

// MembershipDirectory is the external membership-check collaborator. The
// gateway consults it before any group join, typing, or broadcast action and
// to resync a connection against the user's durable conversation list.
type MembershipDirectory interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	MemberIDs(ctx context.Context, conversationID string) ([]string, error)
	ConversationIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceSink consumes came-online / went-offline signals from the presence
// registry (e.g. to clear or stamp last-seen).
type PresenceSink interface {
	UserOnline(ctx context.Context, userID string)
	UserOffline(ctx context.Context, userID string, lastSeen time.Time)
}

// MessageStore is the persistence collaborator behind websocket message
// actions. Records are committed before the gateway broadcasts them.
type MessageStore interface {
	// SaveMessage persists a message for senderID and returns the broadcast
	// payload plus the IDs of mentioned users.
	SaveMessage(ctx context.Context, senderID string, in SendMessageInput) (*MessagePayload, []string, error)

	// MarkRead records a read receipt for a message in conversationID,
	// rejecting receipts for messages that live elsewhere; recording an
	// existing receipt is a no-op.
	MarkRead(ctx context.Context, conversationID, messageID, userID string) error
}

// SendMessageInput carries the client-supplied fields of a new message.
type SendMessageInput struct {
	ConversationID   string
	Content          string
	Type             string
	ParentMessageID  string
	EphemeralSeconds int
	Metadata         string
}

// OfflineNotifier receives mention events for users with zero live
// connections so the external push/unread pipeline can take over.
type OfflineNotifier interface {
	MentionWhileOffline(ctx context.Context, userID string, msg *MessagePayload)
}

// EventBus fans events out to other gateway instances. Implementations tag
// published events with the origin instance so subscribers can skip their own.
type EventBus interface {
	PublishConversation(ctx context.Context, conversationID string, evt *Event) error
	PublishUser(ctx context.Context, userID string, evt *Event) error
}
