package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message type constants
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeVoice  = "voice"
	MessageTypeSystem = "system"
)

// Message is a persisted chat message. The gateway broadcasts messages only
// after they are committed here.
type Message struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string `gorm:"not null;type:uuid;index" json:"conversationId"`
	SenderID       string `gorm:"not null;type:uuid" json:"senderId"`

	Type     string `gorm:"not null;type:varchar(20);default:'text'" json:"type"`
	Content  string `gorm:"not null" json:"content"`
	Metadata string `json:"metadata,omitempty"` // attachment path, mime, duration

	ParentMessageID *string `gorm:"type:uuid" json:"parentMessageId,omitempty"` // thread root

	IsDeleted bool `gorm:"default:false" json:"isDeleted"`
	IsPinned  bool `gorm:"default:false" json:"isPinned"`

	CreatedAt          time.Time  `json:"createdAt"`
	EditedAt           *time.Time `json:"editedAt,omitempty"`
	EphemeralExpiresAt *time.Time `json:"ephemeralExpiresAt,omitempty"`

	Sender    User              `gorm:"foreignKey:SenderID" json:"-"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// MessageReaction is one user's emoji reaction on a message.
type MessageReaction struct {
	MessageID string    `gorm:"primaryKey;type:uuid" json:"messageId"`
	UserID    string    `gorm:"primaryKey;type:uuid" json:"userId"`
	Emoji     string    `gorm:"primaryKey;type:varchar(64)" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageRead is a read receipt; recording the same receipt twice is a no-op.
type MessageRead struct {
	MessageID string    `gorm:"primaryKey;type:uuid" json:"messageId"`
	UserID    string    `gorm:"primaryKey;type:uuid" json:"userId"`
	ReadAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"readAt"`
}

// Mention records that a message mentioned a user, driving direct
// notification independent of group membership.
type Mention struct {
	MessageID string `gorm:"primaryKey;type:uuid" json:"messageId"`
	UserID    string `gorm:"primaryKey;type:uuid" json:"userId"`
	IsAll     bool   `gorm:"default:false" json:"isAll"`
}

/** -------------------- DTOs -------------------- */

type SendMessageRequest struct {
	ConversationID   string `json:"conversationId" binding:"required"`
	Content          string `json:"content" binding:"required"`
	Type             string `json:"type"`
	ParentMessageID  string `json:"parentMessageId"`
	EphemeralSeconds int    `json:"ephemeralSeconds"`
	Metadata         string `json:"metadata"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type MessageHistoryItem struct {
	ID                 string             `json:"id"`
	SenderID           string             `json:"senderId"`
	SenderUsername     string             `json:"senderUsername"`
	SenderDisplayName  string             `json:"senderDisplayName,omitempty"`
	SenderAvatarURL    string             `json:"senderAvatarUrl,omitempty"`
	Content            string             `json:"content"`
	Type               string             `json:"type"`
	ParentMessageID    string             `json:"parentMessageId,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	EditedAt           *time.Time         `json:"editedAt,omitempty"`
	EphemeralExpiresAt *time.Time         `json:"ephemeralExpiresAt,omitempty"`
	IsPinned           bool               `json:"isPinned"`
	Metadata           string             `json:"metadata,omitempty"`
	Reactions          []ReactionSummary  `json:"reactions"`
	MyReactions        []string           `json:"myReactions"`
}

type ReactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type MessageHistoryResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Items    []MessageHistoryItem `json:"items"`
}
