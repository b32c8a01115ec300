package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound socket events.
const (
	EventSendMessage          = "send_message"
	EventMarkRead             = "mark_read"
	EventMarkConversationRead = "mark_conversation_read"
	EventDeleteMessage        = "delete_message"
	EventEditMessage          = "edit_message"
	EventTyping               = "typing"
)

// Outbound socket events.
const (
	EventMessageSent               = "message_sent"
	EventChatMessage               = "chat_message"
	EventMessageRead               = "message_read"
	EventMessageReadConfirmed      = "message_read_confirmed"
	EventConversationRead          = "conversation_read"
	EventConversationReadConfirmed = "conversation_read_confirmed"
	EventMessageDeleted            = "message_deleted"
	EventMessageDeletedConfirmed   = "message_deleted_confirmed"
	EventMessageEdited             = "message_edited"
	EventMessageEditedConfirmed    = "message_edited_confirmed"
	EventTypingStart               = "typing_start"
	EventTypingStop                = "typing_stop"
	EventConversationCreated       = "conversation_created"
	EventError                     = "error"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the envelope data into target.
func (e Envelope) Decode(target interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %q has no data", e.Event)
	}
	return json.Unmarshal(e.Data, target)
}

// OutboundEvent is implemented by every payload the server pushes.
type OutboundEvent interface {
	EventName() string
}

// EncodeEnvelope wraps an outbound payload under its event name.
func EncodeEnvelope(event OutboundEvent) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event.EventName(), err)
	}
	return Envelope{Event: event.EventName(), Data: data}, nil
}

// SendMessageRequest is the payload of send_message.
type SendMessageRequest struct {
	ConversationID uint    `json:"conversation_id" validate:"required"`
	Content        string  `json:"content" validate:"max=4000"`
	ContentType    string  `json:"content_type" validate:"omitempty,oneof=text image audio gif file"`
	MediaURL       *string `json:"media_url" validate:"omitempty,url,max=500"`
}

// MarkReadRequest is the payload of mark_read.
type MarkReadRequest struct {
	MessageID      uint `json:"message_id" validate:"required"`
	ConversationID uint `json:"conversation_id" validate:"required"`
}

// MarkConversationReadRequest is the payload of mark_conversation_read.
type MarkConversationReadRequest struct {
	ConversationID uint `json:"conversation_id" validate:"required"`
}

// DeleteMessageRequest is the payload of delete_message.
type DeleteMessageRequest struct {
	MessageID uint `json:"message_id" validate:"required"`
}

// EditMessageRequest is the payload of edit_message.
type EditMessageRequest struct {
	MessageID uint   `json:"message_id" validate:"required"`
	Content   string `json:"content" validate:"required,min=1,max=4000"`
}

// TypingRequest is the payload of typing.
type TypingRequest struct {
	ConversationID uint `json:"conversation_id" validate:"required"`
	Typing         bool `json:"typing"`
}

// MessagePayload describes a chat message on the wire.
type MessagePayload struct {
	ID             uint        `json:"id"`
	ConversationID uint        `json:"conversation_id"`
	Sender         UserSummary `json:"sender"`
	Content        string      `json:"content"`
	ContentType    string      `json:"content_type"`
	MediaURL       *string     `json:"media_url"`
	ReadBy         []uint      `json:"read_by"`
	EditedAt       *time.Time  `json:"edited_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MessageSentEvent confirms a persisted message to its originating session.
type MessageSentEvent struct {
	MessagePayload
	Confirmed bool `json:"confirmed"`
}

// EventName implements OutboundEvent.
func (MessageSentEvent) EventName() string { return EventMessageSent }

// ChatMessageEvent delivers a new message to other sessions.
type ChatMessageEvent struct {
	MessagePayload
}

// EventName implements OutboundEvent.
func (ChatMessageEvent) EventName() string { return EventChatMessage }

// MessageEditedEvent delivers an edited message to other sessions.
type MessageEditedEvent struct {
	MessagePayload
}

// EventName implements OutboundEvent.
func (MessageEditedEvent) EventName() string { return EventMessageEdited }

// MessageEditedConfirmedEvent confirms an edit to its originating session.
type MessageEditedConfirmedEvent struct {
	MessagePayload
}

// EventName implements OutboundEvent.
func (MessageEditedConfirmedEvent) EventName() string { return EventMessageEditedConfirmed }

// MessageReadPayload describes a single read receipt.
type MessageReadPayload struct {
	MessageID      uint      `json:"message_id"`
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// MessageReadEvent notifies other sessions of a read receipt.
type MessageReadEvent struct {
	MessageReadPayload
}

// EventName implements OutboundEvent.
func (MessageReadEvent) EventName() string { return EventMessageRead }

// MessageReadConfirmedEvent confirms a read receipt to its originating session.
type MessageReadConfirmedEvent struct {
	MessageReadPayload
}

// EventName implements OutboundEvent.
func (MessageReadConfirmedEvent) EventName() string { return EventMessageReadConfirmed }

// ConversationReadPayload describes a bulk read of a conversation.
type ConversationReadPayload struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Marked         int64     `json:"marked"`
	ReadAt         time.Time `json:"read_at"`
}

// ConversationReadEvent notifies other sessions of a bulk read.
type ConversationReadEvent struct {
	ConversationReadPayload
}

// EventName implements OutboundEvent.
func (ConversationReadEvent) EventName() string { return EventConversationRead }

// ConversationReadConfirmedEvent confirms a bulk read to its originating session.
type ConversationReadConfirmedEvent struct {
	ConversationReadPayload
}

// EventName implements OutboundEvent.
func (ConversationReadConfirmedEvent) EventName() string { return EventConversationReadConfirmed }

// MessageDeletedPayload identifies a soft-deleted message.
type MessageDeletedPayload struct {
	MessageID      uint `json:"message_id"`
	ConversationID uint `json:"conversation_id"`
	DeletedBy      uint `json:"deleted_by"`
}

// MessageDeletedEvent notifies other sessions of a deletion.
type MessageDeletedEvent struct {
	MessageDeletedPayload
}

// EventName implements OutboundEvent.
func (MessageDeletedEvent) EventName() string { return EventMessageDeleted }

// MessageDeletedConfirmedEvent confirms a deletion to its originating session.
type MessageDeletedConfirmedEvent struct {
	MessageDeletedPayload
}

// EventName implements OutboundEvent.
func (MessageDeletedConfirmedEvent) EventName() string { return EventMessageDeletedConfirmed }

// TypingIndicator announces that a user started or stopped typing.
type TypingIndicator struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	UserName       string    `json:"user_name"`
	Typing         bool      `json:"typing"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventName implements OutboundEvent.
func (t TypingIndicator) EventName() string {
	if t.Typing {
		return EventTypingStart
	}
	return EventTypingStop
}

// ConversationCreatedEvent announces a new conversation to its participants.
type ConversationCreatedEvent struct {
	ConversationResponse
}

// EventName implements OutboundEvent.
func (ConversationCreatedEvent) EventName() string { return EventConversationCreated }

// ErrorEvent reports a failed inbound event to its originating session.
type ErrorEvent struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// EventName implements OutboundEvent.
func (ErrorEvent) EventName() string { return EventError }
