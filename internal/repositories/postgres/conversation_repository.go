package postgres

import (
	"context"

	"chat-gateway/internal/models"

	"gorm.io/gorm"
)

// ConversationRepository is the durable conversation/membership store. It
// doubles as the gateway's membership directory: IsMember, MemberIDs and
// ConversationIDs back every group join, typing and broadcast check.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.ConversationMember{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Conversation{}, "id = ?", conversationID).Error
}

func (r *ConversationRepository) ListAll(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).Find(&convs).Error
	return convs, err
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ?", userID).
		Find(&convs).Error
	return convs, err
}

// FindDirect returns the existing direct conversation between two users, or
// gorm.ErrRecordNotFound.
func (r *ConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("type = ?", models.ConversationTypeDirect).
		Where("id IN (SELECT conversation_id FROM conversation_members WHERE user_id = ?)", userA).
		Where("id IN (SELECT conversation_id FROM conversation_members WHERE user_id = ?)", userB).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) AddMember(ctx context.Context, member *models.ConversationMember) error {
	// Adding an existing member is a no-op.
	return r.db.WithContext(ctx).
		Where(models.ConversationMember{ConversationID: member.ConversationID, UserID: member.UserID}).
		FirstOrCreate(member).Error
}

func (r *ConversationRepository) RemoveMember(ctx context.Context, conversationID, userID string) error {
	return r.db.WithContext(ctx).
		Delete(&models.ConversationMember{}, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
}

func (r *ConversationRepository) MemberRole(ctx context.Context, conversationID, userID string) (string, error) {
	var member models.ConversationMember
	err := r.db.WithContext(ctx).
		First(&member, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

func (r *ConversationRepository) Members(ctx context.Context, conversationID string) ([]models.MemberResponse, error) {
	var members []models.MemberResponse
	err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Select("conversation_members.user_id, users.username, users.display_name, users.avatar_url, conversation_members.role").
		Joins("JOIN users ON users.id = conversation_members.user_id").
		Where("conversation_members.conversation_id = ?", conversationID).
		Scan(&members).Error
	return members, err
}

// =============================================================================
// Membership directory (gateway collaborator)
// =============================================================================

func (r *ConversationRepository) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ConversationRepository) MemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *ConversationRepository) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}
