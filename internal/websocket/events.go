package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a server push event delivered to connected clients.
type EventType string

const (
	// Connection events
	EventConnect EventType = "connection.connect"

	// Conversation events
	EventMessage  EventType = "message"
	EventTyping   EventType = "typing"
	EventReaction EventType = "reaction"
	EventMention  EventType = "mention"
	EventRead     EventType = "read"

	// Call lifecycle events, broadcast to every member of the conversation
	EventCallStart EventType = "call/start"
	EventCallJoin  EventType = "call/join"
	EventCallLeave EventType = "call/leave"
	EventCallEnd   EventType = "call/end"

	// WebRTC signaling events, delivered point-to-point to one user's connections
	EventWebRTCOffer     EventType = "webrtc/offer"
	EventWebRTCAnswer    EventType = "webrtc/answer"
	EventWebRTCCandidate EventType = "webrtc/candidate"

	// Error events
	EventError EventType = "error"
)

func (t EventType) String() string {
	return string(t)
}

// Client action names accepted over the websocket.
const (
	ActionJoinConversation  = "conversation.join"
	ActionLeaveConversation = "conversation.leave"
	ActionResync            = "conversation.resync"
	ActionTyping            = "typing"
	ActionSendMessage       = "message.send"
	ActionMarkRead          = "read"
	ActionCallStart         = "call.start"
	ActionCallJoin          = "call.join"
	ActionCallLeave         = "call.leave"
	ActionCallEnd           = "call.end"
	ActionWebRTCOffer       = "webrtc.offer"
	ActionWebRTCAnswer      = "webrtc.answer"
	ActionWebRTCCandidate   = "webrtc.candidate"
)

// Event is the envelope pushed to clients. Data holds flat primitive fields
// only; signaling payloads ride through as opaque JSON.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	Origin    string         `json:"origin,omitempty"`
}

// ClientAction is the inbound frame read from a client connection.
type ClientAction struct {
	Action           string          `json:"action"`
	ConversationID   string          `json:"conversationId,omitempty"`
	Conversations    []string        `json:"conversations,omitempty"`
	IsTyping         bool            `json:"isTyping,omitempty"`
	Content          string          `json:"content,omitempty"`
	MessageType      string          `json:"messageType,omitempty"`
	ParentMessageID  string          `json:"parentMessageId,omitempty"`
	EphemeralSeconds int             `json:"ephemeralSeconds,omitempty"`
	Metadata         string          `json:"metadata,omitempty"`
	MessageID        string          `json:"messageId,omitempty"`
	ToUserID         string          `json:"toUserId,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload is a fully-formed, already-persisted message as broadcast to
// conversation groups and mentioned users.
type MessagePayload struct {
	ID                 string     `json:"id"`
	ConversationID     string     `json:"conversationId"`
	SenderID           string     `json:"senderId"`
	SenderUsername     string     `json:"senderUsername,omitempty"`
	SenderDisplayName  string     `json:"senderDisplayName,omitempty"`
	SenderAvatarURL    string     `json:"senderAvatarUrl,omitempty"`
	Content            string     `json:"content"`
	Type               string     `json:"type"`
	ParentMessageID    string     `json:"parentMessageId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	EphemeralExpiresAt *time.Time `json:"ephemeralExpiresAt,omitempty"`
	Metadata           string     `json:"metadata,omitempty"`
}

// NewEvent creates an event envelope with the given type and data.
func NewEvent(evtType EventType, userID string, data map[string]any) *Event {
	if data == nil {
		data = make(map[string]any)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      evtType,
		Data:      data,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// NewConnectEvent acknowledges a freshly registered connection.
func NewConnectEvent(clientID, userID string) *Event {
	return NewEvent(EventConnect, userID, map[string]any{
		"clientId": clientID,
		"status":   "connected",
	})
}

// NewTypingEvent signals a typing indicator change in a conversation.
func NewTypingEvent(conversationID, userID string, isTyping bool) *Event {
	return NewEvent(EventTyping, userID, map[string]any{
		"conversationId": conversationID,
		"userId":         userID,
		"isTyping":       isTyping,
	})
}

// NewMessageEvent wraps a persisted message payload for group broadcast.
func NewMessageEvent(msg *MessagePayload) *Event {
	return NewEvent(EventMessage, msg.SenderID, payloadToMap(msg))
}

// NewMentionEvent wraps a persisted message payload for direct delivery to a
// mentioned user.
func NewMentionEvent(msg *MessagePayload) *Event {
	return NewEvent(EventMention, msg.SenderID, payloadToMap(msg))
}

// NewReadEvent signals a read receipt in a conversation.
func NewReadEvent(conversationID, messageID, userID string) *Event {
	return NewEvent(EventRead, userID, map[string]any{
		"conversationId": conversationID,
		"messageId":      messageID,
		"userId":         userID,
	})
}

// NewReactionEvent signals a reaction change on a message. Op is "add" or
// "remove".
func NewReactionEvent(conversationID, messageID, userID, emoji, op string) *Event {
	return NewEvent(EventReaction, userID, map[string]any{
		"conversationId": conversationID,
		"messageId":      messageID,
		"userId":         userID,
		"emoji":          emoji,
		"op":             op,
	})
}

// NewCallEvent signals a call lifecycle transition. Participants is a
// consistent snapshot taken after the transition applied.
func NewCallEvent(evtType EventType, conversationID, userID string, participants []string) *Event {
	if participants == nil {
		participants = []string{}
	}
	return NewEvent(evtType, userID, map[string]any{
		"conversationId": conversationID,
		"userId":         userID,
		"participants":   participants,
	})
}

// NewSignalEvent wraps an opaque WebRTC payload for point-to-point delivery,
// tagged with the sending user.
func NewSignalEvent(evtType EventType, fromUserID string, payload json.RawMessage) *Event {
	return NewEvent(evtType, fromUserID, map[string]any{
		"from":    fromUserID,
		"payload": payload,
	})
}

// NewErrorEvent reports a rejected client action back to that client only.
func NewErrorEvent(userID, code, message string) *Event {
	return NewEvent(EventError, userID, map[string]any{
		"code":    code,
		"message": message,
	})
}

func payloadToMap(msg *MessagePayload) map[string]any {
	data := make(map[string]any)
	if raw, err := json.Marshal(msg); err == nil {
		json.Unmarshal(raw, &data)
	}
	return data
}
