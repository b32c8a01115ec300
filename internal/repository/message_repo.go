package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-social-api/internal/models"
)

// MessageRepository persists chat messages and their read receipts.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id uint) error
	AddReader(ctx context.Context, messageID, userID uint, at time.Time) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uint, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, conversationID, userID uint) (int64, error)
	ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error)
	LatestByConversation(ctx context.Context, conversationID uint) (models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	if err := conn(ctx, r.db).Preload("Reads").First(&message, id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) error {
	result := conn(ctx, r.db).
		Model(&models.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uint) error {
	result := conn(ctx, r.db).Delete(&models.Message{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddReader reports whether a new receipt was written; an existing one is left untouched.
func (r *messageRepository) AddReader(ctx context.Context, messageID, userID uint, at time.Time) (bool, error) {
	row := models.MessageRead{MessageID: messageID, UserID: userID, ReadAt: at}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, conversationID, userID uint, at time.Time) (int64, error) {
	result := conn(ctx, r.db).Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ?
		  AND m.sender_id <> ?
		  AND m.deleted_at IS NULL
		  AND NOT EXISTS (
		    SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?
		  )`, userID, at, conversationID, userID, userID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) UnreadCount(ctx context.Context, conversationID, userID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListByConversation returns a newest-first page in chronological order.
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := conn(ctx, r.db).
		Preload("Reads").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(clampOffset(offset)).
		Limit(clampLimit(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) LatestByConversation(ctx context.Context, conversationID uint) (models.Message, error) {
	var message models.Message
	err := conn(ctx, r.db).
		Preload("Reads").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}
