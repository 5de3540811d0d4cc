package postgres

import (
	"context"

	"chat-gateway/internal/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Preload("Sender").First(&msg, "id = ?", messageID).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) History(ctx context.Context, conversationID, viewerID string, page, pageSize int) (*models.MessageHistoryResponse, error) {
	tx := r.db.WithContext(ctx)

	query := tx.Model(&models.Message{}).
		Where("conversation_id = ? AND is_deleted = false", conversationID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := tx.
		Preload("Sender").
		Preload("Reactions").
		Where("conversation_id = ? AND is_deleted = false", conversationID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	items := make([]models.MessageHistoryItem, 0, len(msgs))
	for _, m := range msgs {
		item := models.MessageHistoryItem{
			ID:                 m.ID,
			SenderID:           m.SenderID,
			SenderUsername:     m.Sender.Username,
			SenderDisplayName:  m.Sender.DisplayName,
			SenderAvatarURL:    m.Sender.AvatarURL,
			Content:            m.Content,
			Type:               m.Type,
			CreatedAt:          m.CreatedAt,
			EditedAt:           m.EditedAt,
			EphemeralExpiresAt: m.EphemeralExpiresAt,
			IsPinned:           m.IsPinned,
			Metadata:           m.Metadata,
			Reactions:          []models.ReactionSummary{},
			MyReactions:        []string{},
		}
		if m.ParentMessageID != nil {
			item.ParentMessageID = *m.ParentMessageID
		}

		counts := make(map[string]int)
		for _, reaction := range m.Reactions {
			counts[reaction.Emoji]++
			if reaction.UserID == viewerID {
				item.MyReactions = append(item.MyReactions, reaction.Emoji)
			}
		}
		for emoji, count := range counts {
			item.Reactions = append(item.Reactions, models.ReactionSummary{Emoji: emoji, Count: count})
		}

		items = append(items, item)
	}

	return &models.MessageHistoryResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	}, nil
}

// AddReaction records a reaction; recording an existing one reports added
// false so callers skip the broadcast.
func (r *MessageRepository) AddReaction(ctx context.Context, messageID, userID, emoji string) (added bool, err error) {
	reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	result := r.db.WithContext(ctx).
		Where(reaction).
		FirstOrCreate(&reaction)
	return result.RowsAffected > 0, result.Error
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (removed bool, err error) {
	result := r.db.WithContext(ctx).
		Delete(&models.MessageReaction{}, "message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
	return result.RowsAffected > 0, result.Error
}

// MarkRead records a read receipt; duplicates are a no-op.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string) error {
	read := models.MessageRead{MessageID: messageID, UserID: userID}
	return r.db.WithContext(ctx).
		Where(models.MessageRead{MessageID: messageID, UserID: userID}).
		FirstOrCreate(&read).Error
}

func (r *MessageRepository) AddMentions(ctx context.Context, messageID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	mentions := make([]models.Mention, 0, len(userIDs))
	for _, userID := range userIDs {
		mentions = append(mentions, models.Mention{MessageID: messageID, UserID: userID})
	}
	return r.db.WithContext(ctx).Create(&mentions).Error
}
