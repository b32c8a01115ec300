package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-social-api/internal/models"
)

// ConversationRepository persists conversations and their participants.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation, participantIDs []uint) error
	FindByID(ctx context.Context, id uint) (models.Conversation, error)
	FindByDirectKey(ctx context.Context, key string) (models.Conversation, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error)
	Search(ctx context.Context, userID uint, query string, limit int) ([]models.Conversation, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id uint) error
	Touch(ctx context.Context, id uint, at time.Time) error
	ParticipantIDs(ctx context.Context, id uint) ([]uint, error)
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
	AddParticipant(ctx context.Context, conversationID, userID uint) error
	RemoveParticipant(ctx context.Context, conversationID, userID uint) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation, participantIDs []uint) error {
	db := conn(ctx, r.db)

	conversation.Participants = nil
	if err := db.Create(conversation).Error; err != nil {
		return err
	}

	rows := make([]models.ConversationParticipant, 0, len(participantIDs))
	for _, userID := range participantIDs {
		rows = append(rows, models.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         userID,
			JoinedAt:       conversation.CreatedAt,
		})
	}
	if len(rows) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}
	}

	conversation.Participants = rows
	return nil
}

func (r *conversationRepository) FindByID(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := conn(ctx, r.db).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		First(&conversation, id).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindByDirectKey(ctx context.Context, key string) (models.Conversation, error) {
	var conversation models.Conversation
	err := conn(ctx, r.db).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Where("direct_key = ? AND is_group = ?", key, false).
		First(&conversation).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.memberScope(ctx, userID).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Order("conversations.updated_at DESC").
		Order("conversations.id DESC").
		Offset(clampOffset(offset)).
		Limit(clampLimit(limit)).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) Search(ctx context.Context, userID uint, query string, limit int) ([]models.Conversation, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var conversations []models.Conversation
	err := r.memberScope(ctx, userID).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Where("conversations.name IS NOT NULL AND LOWER(conversations.name) LIKE ?", pattern).
		Order("conversations.updated_at DESC").
		Limit(clampLimit(limit)).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) memberScope(ctx context.Context, userID uint) *gorm.DB {
	return conn(ctx, r.db).
		Model(&models.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID)
}

func (r *conversationRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	result := conn(ctx, r.db).Model(&models.Conversation{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete stamps deleted_at and releases the direct key so the pair can start over.
func (r *conversationRepository) SoftDelete(ctx context.Context, id uint) error {
	db := conn(ctx, r.db)

	if err := db.Model(&models.Conversation{}).Where("id = ?", id).UpdateColumn("direct_key", nil).Error; err != nil {
		return err
	}

	result := db.Delete(&models.Conversation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *conversationRepository) Touch(ctx context.Context, id uint, at time.Time) error {
	result := conn(ctx, r.db).Model(&models.Conversation{}).Where("id = ?", id).UpdateColumn("updated_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *conversationRepository) ParticipantIDs(ctx context.Context, id uint) ([]uint, error) {
	var ids []uint
	err := conn(ctx, r.db).
		Model(&models.ConversationParticipant{}).
		Joins("JOIN conversations c ON c.id = conversation_participants.conversation_id AND c.deleted_at IS NULL").
		Where("conversation_participants.conversation_id = ?", id).
		Order("conversation_participants.user_id ASC").
		Pluck("conversation_participants.user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *conversationRepository) AddParticipant(ctx context.Context, conversationID, userID uint) error {
	row := models.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
		JoinedAt:       time.Now().UTC(),
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (r *conversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID uint) error {
	result := conn(ctx, r.db).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.ConversationParticipant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
