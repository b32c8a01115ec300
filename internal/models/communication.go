package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message content types accepted by the chat surface.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
	ContentTypeAudio = "audio"
	ContentTypeGIF   = "gif"
	ContentTypeFile  = "file"
)

// User is the read model of an account owned by the identity service.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	FirstName    string    `gorm:"size:100" json:"first_name"`
	LastName     string    `gorm:"size:100" json:"last_name"`
	ProfilePhoto *string   `gorm:"size:255" json:"profile_photo,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName joins first and last name, falling back to the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Conversation groups participants exchanging messages.
type Conversation struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        *string `gorm:"size:255" json:"name,omitempty"`
	Description *string `gorm:"type:text" json:"description,omitempty"`
	AvatarURL   *string `gorm:"size:500" json:"avatar_url,omitempty"`
	IsGroup     bool    `gorm:"not null;default:false" json:"is_group"`
	// DirectKey is "<low>:<high>" for direct conversations and NULL otherwise.
	DirectKey    *string                   `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedByID  uint                      `gorm:"index;not null" json:"created_by_id"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `gorm:"index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt            `gorm:"index" json:"-"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// ParticipantIDs lists the user ids of the loaded participants.
func (c Conversation) ParticipantIDs() []uint {
	ids := make([]uint, 0, len(c.Participants))
	for _, participant := range c.Participants {
		ids = append(ids, participant.UserID)
	}
	return ids
}

// ConversationParticipant is the join row between conversations and users.
type ConversationParticipant struct {
	ConversationID uint      `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message is a single chat entry inside a conversation.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"index;not null" json:"conversation_id"`
	SenderID       uint           `gorm:"index;not null" json:"sender_id"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	ContentType    string         `gorm:"size:32;default:text" json:"content_type"`
	MediaURL       *string        `gorm:"size:500" json:"media_url,omitempty"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	Reads          []MessageRead  `gorm:"foreignKey:MessageID" json:"reads,omitempty"`
}

// ReadBy returns the user ids that have read the message.
func (m Message) ReadBy() []uint {
	ids := make([]uint, 0, len(m.Reads))
	for _, read := range m.Reads {
		ids = append(ids, read.UserID)
	}
	return ids
}

// MessageRead records that a user has read a message.
type MessageRead struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// Notification is a durable record of a social fact addressed to a user.
type Notification struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	Type        string         `gorm:"size:64;index;not null" json:"type"`
	ActorID     uint           `gorm:"index" json:"actor_id"`
	RelatedID   *uint          `json:"related_id,omitempty"`
	RelatedType string         `gorm:"size:32" json:"related_type,omitempty"`
	Data        datatypes.JSON `gorm:"type:json" json:"data"`
	Read        bool           `gorm:"not null;default:false;index" json:"read"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
