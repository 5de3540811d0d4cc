package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation type constants
const (
	ConversationTypeDirect  = "direct"
	ConversationTypeGroup   = "group"
	ConversationTypeChannel = "channel"
)

// Conversation member role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation represents a broadcast domain: a direct chat, group or channel.
type Conversation struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Type        string    `gorm:"not null;type:varchar(20);check:type IN ('direct', 'group', 'channel')" json:"type"`
	Description string    `json:"description,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ConversationMember is the durable membership record consulted before every
// group join, typing and broadcast action.
type ConversationMember struct {
	ConversationID string    `gorm:"primaryKey;type:uuid" json:"conversationId"`
	UserID         string    `gorm:"primaryKey;type:uuid" json:"userId"`
	Role           string    `gorm:"not null;type:varchar(20);default:'member'" json:"role"`
	JoinedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"joinedAt"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

/** -------------------- DTOs -------------------- */

type CreateConversationRequest struct {
	Name    string   `json:"name" binding:"required"`
	Type    string   `json:"type" binding:"required,oneof=group channel"`
	Members []string `json:"members"`
}

type JoinConversationRequest struct {
	Code string `json:"code" binding:"required"`
}

type DirectConversationRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type ConversationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

type MemberResponse struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Role        string `json:"role"`
}
