package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/models"
	"github.com/noah-isme/gema-social-api/internal/repository"
)

const directLockStripes = 64

var (
	// ErrConversationNotFound indicates the conversation does not exist or was deleted.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound indicates the message does not exist or was deleted.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotParticipant indicates the actor is not a member of the conversation.
	ErrNotParticipant = errors.New("not a participant of this conversation")
	// ErrNotMessageSender indicates the actor did not send the message.
	ErrNotMessageSender = errors.New("only the sender can modify this message")
	// ErrInvalidParticipants indicates the participant list cannot form a conversation.
	ErrInvalidParticipants = errors.New("invalid participants")
	// ErrEmptyMessage indicates a message with neither content nor media.
	ErrEmptyMessage = errors.New("message content empty")
	// ErrNotGroupConversation indicates a membership change on a direct conversation.
	ErrNotGroupConversation = errors.New("participants can only be changed on group conversations")
)

// ConversationService owns conversations, messages and read receipts.
type ConversationService interface {
	CreateConversation(ctx context.Context, creatorID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, bool, error)
	GetOrCreateDirect(ctx context.Context, userA, userB uint) (dto.ConversationResponse, bool, error)
	GetConversation(ctx context.Context, id, userID uint) (dto.ConversationResponse, error)
	ListConversations(ctx context.Context, userID uint, limit, offset int) ([]dto.ConversationResponse, error)
	SearchConversations(ctx context.Context, userID uint, query string, limit int) ([]dto.ConversationResponse, error)
	UpdateConversation(ctx context.Context, id, actorID uint, req dto.ConversationUpdateRequest) (dto.ConversationResponse, error)
	DeleteConversation(ctx context.Context, id, actorID uint) error
	AddParticipant(ctx context.Context, id, actorID, userID uint) (dto.ConversationResponse, error)
	RemoveParticipant(ctx context.Context, id, actorID, userID uint) error
	ParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error)
	RequireParticipant(ctx context.Context, conversationID, userID uint) error

	CreateMessage(ctx context.Context, senderID uint, req dto.SendMessageRequest) (dto.MessagePayload, error)
	EditMessage(ctx context.Context, actorID uint, req dto.EditMessageRequest) (dto.MessagePayload, error)
	DeleteMessage(ctx context.Context, actorID uint, req dto.DeleteMessageRequest) (dto.MessageDeletedPayload, error)
	MarkRead(ctx context.Context, userID uint, req dto.MarkReadRequest) (dto.MessageReadPayload, bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uint) (dto.ConversationReadPayload, error)
	UnreadCount(ctx context.Context, conversationID, userID uint) (int64, error)
	ListMessages(ctx context.Context, conversationID, userID uint, limit, offset int) ([]dto.MessagePayload, error)
}

type conversationService struct {
	tx            repository.Transactor
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	directory     UserDirectory
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	directLocks   [directLockStripes]sync.Mutex
	now           func() time.Time
}

// NewConversationService constructs the conversation service.
func NewConversationService(
	tx repository.Transactor,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	directory UserDirectory,
	validate *validator.Validate,
	logger zerolog.Logger,
) ConversationService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &conversationService{
		tx:            tx,
		conversations: conversations,
		messages:      messages,
		users:         users,
		directory:     directory,
		validator:     validate,
		sanitizer:     sanitizer,
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *conversationService) CreateConversation(ctx context.Context, creatorID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationResponse{}, false, err
	}

	participantIDs := uniqueIDs(append([]uint{creatorID}, req.ParticipantIDs...))
	if len(participantIDs) < 2 {
		return dto.ConversationResponse{}, false, ErrInvalidParticipants
	}

	// Two distinct members is a direct conversation regardless of the entry point.
	if len(participantIDs) == 2 {
		other := participantIDs[0]
		if other == creatorID {
			other = participantIDs[1]
		}
		return s.GetOrCreateDirect(ctx, creatorID, other)
	}

	if err := s.ensureUsersExist(ctx, participantIDs); err != nil {
		return dto.ConversationResponse{}, false, err
	}

	conversation := models.Conversation{
		Name:        trimmedOrNil(req.Name),
		Description: trimmedOrNil(req.Description),
		IsGroup:     true,
		CreatedByID: creatorID,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.conversations.Create(ctx, &conversation, participantIDs)
	})
	if err != nil {
		return dto.ConversationResponse{}, false, fmt.Errorf("create conversation: %w", err)
	}

	response, err := s.GetConversation(ctx, conversation.ID, creatorID)
	if err != nil {
		return dto.ConversationResponse{}, false, err
	}
	return response, true, nil
}

// GetOrCreateDirect returns the live direct conversation for the pair, creating it if absent.
// Creation is serialised per pair in-process and guarded by the unique direct key in storage.
func (s *conversationService) GetOrCreateDirect(ctx context.Context, userA, userB uint) (dto.ConversationResponse, bool, error) {
	if userA == 0 || userB == 0 || userA == userB {
		return dto.ConversationResponse{}, false, ErrInvalidParticipants
	}

	if err := s.ensureUsersExist(ctx, []uint{userA, userB}); err != nil {
		return dto.ConversationResponse{}, false, err
	}

	key := directKey(userA, userB)
	lock := s.directLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.conversations.FindByDirectKey(ctx, key)
	if err == nil {
		response, err := s.buildConversation(ctx, existing, userA)
		return response, false, err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ConversationResponse{}, false, fmt.Errorf("find direct conversation: %w", err)
	}

	conversation := models.Conversation{
		IsGroup:     false,
		DirectKey:   &key,
		CreatedByID: userA,
	}
	createErr := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.conversations.Create(ctx, &conversation, []uint{userA, userB})
	})
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		// Another process won the unique key; return its row instead.
		winner, err := s.conversations.FindByDirectKey(ctx, key)
		if err == nil {
			response, err := s.buildConversation(ctx, winner, userA)
			return response, false, err
		}
	}
	if createErr != nil {
		return dto.ConversationResponse{}, false, fmt.Errorf("create direct conversation: %w", createErr)
	}

	s.logger.Debug().Uint("conversation_id", conversation.ID).Str("direct_key", key).Msg("direct conversation created")

	response, err := s.GetConversation(ctx, conversation.ID, userA)
	if err != nil {
		return dto.ConversationResponse{}, false, err
	}
	return response, true, nil
}

func (s *conversationService) GetConversation(ctx context.Context, id, userID uint) (dto.ConversationResponse, error) {
	conversation, err := s.loadConversation(ctx, id)
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	if !containsID(conversation.ParticipantIDs(), userID) {
		return dto.ConversationResponse{}, ErrNotParticipant
	}
	return s.buildConversation(ctx, conversation, userID)
}

func (s *conversationService) ListConversations(ctx context.Context, userID uint, limit, offset int) ([]dto.ConversationResponse, error) {
	conversations, err := s.conversations.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return s.buildConversations(ctx, conversations, userID)
}

func (s *conversationService) SearchConversations(ctx context.Context, userID uint, query string, limit int) ([]dto.ConversationResponse, error) {
	if strings.TrimSpace(query) == "" {
		return []dto.ConversationResponse{}, nil
	}

	conversations, err := s.conversations.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return s.buildConversations(ctx, conversations, userID)
}

func (s *conversationService) UpdateConversation(ctx context.Context, id, actorID uint, req dto.ConversationUpdateRequest) (dto.ConversationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationResponse{}, err
	}
	if err := s.RequireParticipant(ctx, id, actorID); err != nil {
		return dto.ConversationResponse{}, err
	}

	fields := make(map[string]interface{})
	if req.Name != nil {
		fields["name"] = trimmedOrNil(req.Name)
	}
	if req.Description != nil {
		fields["description"] = trimmedOrNil(req.Description)
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = trimmedOrNil(req.AvatarURL)
	}

	if err := s.conversations.Update(ctx, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationResponse{}, ErrConversationNotFound
		}
		return dto.ConversationResponse{}, fmt.Errorf("update conversation: %w", err)
	}

	return s.GetConversation(ctx, id, actorID)
}

func (s *conversationService) DeleteConversation(ctx context.Context, id, actorID uint) error {
	if err := s.RequireParticipant(ctx, id, actorID); err != nil {
		return err
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.conversations.SoftDelete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *conversationService) AddParticipant(ctx context.Context, id, actorID, userID uint) (dto.ConversationResponse, error) {
	conversation, err := s.loadConversation(ctx, id)
	if err != nil {
		return dto.ConversationResponse{}, err
	}
	if !conversation.IsGroup {
		return dto.ConversationResponse{}, ErrNotGroupConversation
	}
	if !containsID(conversation.ParticipantIDs(), actorID) {
		return dto.ConversationResponse{}, ErrNotParticipant
	}
	if err := s.ensureUsersExist(ctx, []uint{userID}); err != nil {
		return dto.ConversationResponse{}, err
	}

	if err := s.conversations.AddParticipant(ctx, id, userID); err != nil {
		return dto.ConversationResponse{}, fmt.Errorf("add participant: %w", err)
	}

	return s.GetConversation(ctx, id, actorID)
}

// RemoveParticipant lets the creator remove anyone and any member remove themselves.
func (s *conversationService) RemoveParticipant(ctx context.Context, id, actorID, userID uint) error {
	conversation, err := s.loadConversation(ctx, id)
	if err != nil {
		return err
	}
	if !conversation.IsGroup {
		return ErrNotGroupConversation
	}
	if !containsID(conversation.ParticipantIDs(), actorID) {
		return ErrNotParticipant
	}
	if actorID != userID && conversation.CreatedByID != actorID {
		return ErrNotParticipant
	}

	if err := s.conversations.RemoveParticipant(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotParticipant
		}
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

func (s *conversationService) ParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	ids, err := s.conversations.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	return ids, nil
}

func (s *conversationService) RequireParticipant(ctx context.Context, conversationID, userID uint) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}

	if _, err := s.loadConversation(ctx, conversationID); err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// CreateMessage inserts the message and bumps the conversation's updated_at in one transaction.
func (s *conversationService) CreateMessage(ctx context.Context, senderID uint, req dto.SendMessageRequest) (dto.MessagePayload, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessagePayload{}, err
	}

	content := plainText(s.sanitizer, req.Content)
	mediaURL := trimmedOrNil(req.MediaURL)
	if content == "" && mediaURL == nil {
		return dto.MessagePayload{}, ErrEmptyMessage
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = models.ContentTypeText
	}

	if err := s.RequireParticipant(ctx, req.ConversationID, senderID); err != nil {
		return dto.MessagePayload{}, err
	}

	now := s.now()
	message := models.Message{
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    contentType,
		MediaURL:       mediaURL,
		CreatedAt:      now,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.messages.Create(ctx, &message); err != nil {
			return err
		}
		return s.conversations.Touch(ctx, req.ConversationID, now)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessagePayload{}, ErrConversationNotFound
		}
		return dto.MessagePayload{}, fmt.Errorf("create message: %w", err)
	}

	return s.messagePayload(ctx, message), nil
}

func (s *conversationService) EditMessage(ctx context.Context, actorID uint, req dto.EditMessageRequest) (dto.MessagePayload, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessagePayload{}, err
	}

	content := plainText(s.sanitizer, req.Content)
	if content == "" {
		return dto.MessagePayload{}, ErrEmptyMessage
	}

	message, err := s.loadMessage(ctx, req.MessageID)
	if err != nil {
		return dto.MessagePayload{}, err
	}
	if message.SenderID != actorID {
		return dto.MessagePayload{}, ErrNotMessageSender
	}
	if err := s.RequireParticipant(ctx, message.ConversationID, actorID); err != nil {
		return dto.MessagePayload{}, err
	}

	editedAt := s.now()
	if err := s.messages.UpdateContent(ctx, message.ID, content, editedAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessagePayload{}, ErrMessageNotFound
		}
		return dto.MessagePayload{}, fmt.Errorf("edit message: %w", err)
	}

	message.Content = content
	message.EditedAt = &editedAt
	return s.messagePayload(ctx, message), nil
}

func (s *conversationService) DeleteMessage(ctx context.Context, actorID uint, req dto.DeleteMessageRequest) (dto.MessageDeletedPayload, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageDeletedPayload{}, err
	}

	message, err := s.loadMessage(ctx, req.MessageID)
	if err != nil {
		return dto.MessageDeletedPayload{}, err
	}
	if message.SenderID != actorID {
		return dto.MessageDeletedPayload{}, ErrNotMessageSender
	}
	if err := s.RequireParticipant(ctx, message.ConversationID, actorID); err != nil {
		return dto.MessageDeletedPayload{}, err
	}

	if err := s.messages.SoftDelete(ctx, message.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageDeletedPayload{}, ErrMessageNotFound
		}
		return dto.MessageDeletedPayload{}, fmt.Errorf("delete message: %w", err)
	}

	return dto.MessageDeletedPayload{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		DeletedBy:      actorID,
	}, nil
}

// MarkRead records a read receipt. The returned flag is false when nothing changed:
// the receipt already existed or the reader sent the message.
func (s *conversationService) MarkRead(ctx context.Context, userID uint, req dto.MarkReadRequest) (dto.MessageReadPayload, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageReadPayload{}, false, err
	}

	message, err := s.loadMessage(ctx, req.MessageID)
	if err != nil {
		return dto.MessageReadPayload{}, false, err
	}
	if message.ConversationID != req.ConversationID {
		return dto.MessageReadPayload{}, false, ErrMessageNotFound
	}
	if err := s.RequireParticipant(ctx, message.ConversationID, userID); err != nil {
		return dto.MessageReadPayload{}, false, err
	}

	now := s.now()
	payload := dto.MessageReadPayload{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		UserID:         userID,
		ReadAt:         now,
	}

	if message.SenderID == userID {
		return payload, false, nil
	}

	added, err := s.messages.AddReader(ctx, message.ID, userID, now)
	if err != nil {
		return dto.MessageReadPayload{}, false, fmt.Errorf("mark message read: %w", err)
	}
	if !added {
		for _, read := range message.Reads {
			if read.UserID == userID {
				payload.ReadAt = read.ReadAt
			}
		}
	}
	return payload, added, nil
}

func (s *conversationService) MarkConversationRead(ctx context.Context, conversationID, userID uint) (dto.ConversationReadPayload, error) {
	if err := s.RequireParticipant(ctx, conversationID, userID); err != nil {
		return dto.ConversationReadPayload{}, err
	}

	now := s.now()
	var marked int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.messages.MarkConversationRead(ctx, conversationID, userID, now)
		return err
	})
	if err != nil {
		return dto.ConversationReadPayload{}, fmt.Errorf("mark conversation read: %w", err)
	}

	return dto.ConversationReadPayload{
		ConversationID: conversationID,
		UserID:         userID,
		Marked:         marked,
		ReadAt:         now,
	}, nil
}

func (s *conversationService) UnreadCount(ctx context.Context, conversationID, userID uint) (int64, error) {
	if err := s.RequireParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	count, err := s.messages.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}

// ListMessages returns one page of history in chronological order.
func (s *conversationService) ListMessages(ctx context.Context, conversationID, userID uint, limit, offset int) ([]dto.MessagePayload, error) {
	if err := s.RequireParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	senders := s.summariesFor(ctx, senderIDs(messages))
	result := make([]dto.MessagePayload, 0, len(messages))
	for _, message := range messages {
		result = append(result, newMessagePayload(message, senders[message.SenderID]))
	}
	return result, nil
}

func (s *conversationService) loadConversation(ctx context.Context, id uint) (models.Conversation, error) {
	conversation, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	return conversation, nil
}

func (s *conversationService) loadMessage(ctx context.Context, id uint) (models.Message, error) {
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, fmt.Errorf("load message: %w", err)
	}
	return message, nil
}

func (s *conversationService) ensureUsersExist(ctx context.Context, ids []uint) error {
	count, err := s.users.CountExisting(ctx, ids)
	if err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if count != int64(len(ids)) {
		return ErrUserNotFound
	}
	return nil
}

func (s *conversationService) buildConversations(ctx context.Context, conversations []models.Conversation, viewerID uint) ([]dto.ConversationResponse, error) {
	result := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		response, err := s.buildConversation(ctx, conversation, viewerID)
		if err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, nil
}

func (s *conversationService) buildConversation(ctx context.Context, conversation models.Conversation, viewerID uint) (dto.ConversationResponse, error) {
	participants, err := s.directory.Summaries(ctx, conversation.ParticipantIDs())
	if err != nil {
		return dto.ConversationResponse{}, err
	}

	response := dto.ConversationResponse{
		ID:           conversation.ID,
		Name:         conversation.Name,
		Description:  conversation.Description,
		AvatarURL:    conversation.AvatarURL,
		IsGroup:      conversation.IsGroup,
		CreatedByID:  conversation.CreatedByID,
		Participants: participants,
		CreatedAt:    conversation.CreatedAt,
		UpdatedAt:    conversation.UpdatedAt,
	}

	latest, err := s.messages.LatestByConversation(ctx, conversation.ID)
	switch {
	case err == nil:
		payload := s.messagePayload(ctx, latest)
		response.LatestMessage = &payload
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.ConversationResponse{}, fmt.Errorf("load latest message: %w", err)
	}

	if viewerID != 0 {
		unread, err := s.messages.UnreadCount(ctx, conversation.ID, viewerID)
		if err != nil {
			return dto.ConversationResponse{}, fmt.Errorf("count unread messages: %w", err)
		}
		response.UnreadCount = unread
	}

	return response, nil
}

func (s *conversationService) messagePayload(ctx context.Context, message models.Message) dto.MessagePayload {
	sender, err := s.directory.Summary(ctx, message.SenderID)
	if err != nil {
		s.logger.Debug().Err(err).Uint("user_id", message.SenderID).Msg("sender summary unavailable")
		sender = dto.UserSummary{ID: message.SenderID}
	}
	return newMessagePayload(message, sender)
}

func (s *conversationService) summariesFor(ctx context.Context, ids []uint) map[uint]dto.UserSummary {
	result := make(map[uint]dto.UserSummary, len(ids))
	summaries, err := s.directory.Summaries(ctx, ids)
	if err != nil {
		s.logger.Debug().Err(err).Msg("sender summaries unavailable")
	}
	for _, summary := range summaries {
		result[summary.ID] = summary
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			result[id] = dto.UserSummary{ID: id}
		}
	}
	return result
}

func (s *conversationService) directLock(key string) *sync.Mutex {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return &s.directLocks[hasher.Sum32()%directLockStripes]
}

func newMessagePayload(message models.Message, sender dto.UserSummary) dto.MessagePayload {
	return dto.MessagePayload{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		Sender:         sender,
		Content:        message.Content,
		ContentType:    message.ContentType,
		MediaURL:       message.MediaURL,
		ReadBy:         message.ReadBy(),
		EditedAt:       message.EditedAt,
		CreatedAt:      message.CreatedAt,
	}
}

func directKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func senderIDs(messages []models.Message) []uint {
	ids := make([]uint, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.SenderID)
	}
	ids = uniqueIDs(ids)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func containsID(ids []uint, target uint) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// plainText strips markup and returns the remaining text unescaped.
func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
