package dto

import (
	"time"

	"github.com/noah-isme/gema-social-api/internal/models"
)

// UserSummary is the public shape of a user referenced in payloads.
type UserSummary struct {
	ID     uint    `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

// NewUserSummary converts a user model into its summary.
func NewUserSummary(user models.User) UserSummary {
	return UserSummary{
		ID:     user.ID,
		Name:   user.DisplayName(),
		Avatar: user.ProfilePhoto,
	}
}

// ConversationCreateRequest creates a direct or group conversation.
type ConversationCreateRequest struct {
	ParticipantIDs []uint  `json:"participant_ids" validate:"required,min=1,max=256,dive,required"`
	Name           *string `json:"name" validate:"omitempty,max=255"`
	Description    *string `json:"description" validate:"omitempty,max=2000"`
}

// ConversationUpdateRequest patches conversation metadata.
type ConversationUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url,max=500"`
}

// ParticipantAddRequest adds a member to a group conversation.
type ParticipantAddRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// ConversationSearchQuery filters the caller's conversations by name.
type ConversationSearchQuery struct {
	Query string `query:"q" validate:"required,min=1,max=255"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ConversationResponse is the serialized representation of a conversation.
type ConversationResponse struct {
	ID            uint            `json:"id"`
	Name          *string         `json:"name"`
	Description   *string         `json:"description,omitempty"`
	AvatarURL     *string         `json:"avatar_url,omitempty"`
	IsGroup       bool            `json:"is_group"`
	CreatedByID   uint            `json:"created_by_id"`
	Participants  []UserSummary   `json:"participants"`
	LatestMessage *MessagePayload `json:"latest_message,omitempty"`
	UnreadCount   int64           `json:"unread_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MessageListQuery pages through a conversation's history.
type MessageListQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// UnreadCountResponse reports unread messages or notifications.
type UnreadCountResponse struct {
	ConversationID uint  `json:"conversation_id,omitempty"`
	UnreadCount    int64 `json:"unread_count"`
}

// PresenceResponse reports whether a user currently has live sessions.
type PresenceResponse struct {
	UserID   uint `json:"user_id"`
	Online   bool `json:"online"`
	Sessions int  `json:"sessions"`
}

// FactKind enumerates the social facts that produce notifications.
type FactKind string

// Supported fact kinds.
const (
	FactProfileVisit          FactKind = "profile_visit"
	FactFriendRequest         FactKind = "friend_request"
	FactFriendRequestAccepted FactKind = "friend_request_accepted"
	FactPostComment           FactKind = "post_comment"
	FactPostLike              FactKind = "post_like"
	FactPostShare             FactKind = "post_share"
	FactReaction              FactKind = "reaction"
)

// SocialFact is a REST-side event that must be recorded and pushed to its target.
type SocialFact struct {
	Kind         FactKind `json:"kind" validate:"required,oneof=profile_visit friend_request friend_request_accepted post_comment post_like post_share reaction"`
	TargetUserID uint     `json:"target_user_id" validate:"required"`
	ActorID      uint     `json:"actor_id" validate:"required"`
	RelatedID    *uint    `json:"related_id,omitempty"`
	RelatedType  string   `json:"related_type,omitempty" validate:"omitempty,oneof=post comment story"`
	CommentText  string   `json:"comment_text,omitempty" validate:"omitempty,max=2000"`
	Reaction     string   `json:"reaction,omitempty" validate:"omitempty,max=16"`
}

// RelatedEntity points at the object a notification is about.
type RelatedEntity struct {
	ID   uint   `json:"id"`
	Type string `json:"type"`
}

// NotificationPayload is the body pushed live and stored with every notification.
type NotificationPayload struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    uint           `json:"user_id"`
	Actor     UserSummary    `json:"actor"`
	Message   string         `json:"message"`
	Related   *RelatedEntity `json:"related"`
}

// EventName implements OutboundEvent; notifications are emitted under their type.
func (p NotificationPayload) EventName() string { return p.Type }

// NotificationListQuery filters the caller's notifications.
type NotificationListQuery struct {
	Limit      int  `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset     int  `query:"offset" validate:"omitempty,min=0"`
	UnreadOnly bool `query:"unread_only"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID          uint                 `json:"id"`
	UserID      uint                 `json:"user_id"`
	Type        string               `json:"type"`
	ActorID     uint                 `json:"actor_id"`
	RelatedID   *uint                `json:"related_id,omitempty"`
	RelatedType string               `json:"related_type,omitempty"`
	Data        *NotificationPayload `json:"data,omitempty"`
	Read        bool                 `json:"read"`
	CreatedAt   time.Time            `json:"created_at"`
}
