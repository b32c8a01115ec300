package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/models"
	"github.com/noah-isme/gema-social-api/internal/observability"
	"github.com/noah-isme/gema-social-api/internal/repository"
)

const (
	commentPreviewRunes = 100
	defaultReaction     = "👍"
)

// ErrNotificationNotFound indicates the notification does not exist for the caller.
var ErrNotificationNotFound = errors.New("notification not found")

// DispatchResult reports the outcome of recording a social fact.
type DispatchResult struct {
	Notification dto.NotificationResponse `json:"notification"`
	Delivered    int                      `json:"delivered"`
	Skipped      bool                     `json:"skipped"`
}

// NotificationService records social facts as notifications and pushes them to online targets.
type NotificationService interface {
	Dispatch(ctx context.Context, fact dto.SocialFact) (DispatchResult, error)
	List(ctx context.Context, userID uint, query dto.NotificationListQuery) ([]dto.NotificationResponse, error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Delete(ctx context.Context, id, userID uint) error
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	directory   UserDirectory
	router      *DeliveryRouter
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	now         func() time.Time
}

// NewNotificationService constructs a notification service. Redis and NATS are optional
// fact sources; pass nil to disable either.
func NewNotificationService(
	repo repository.NotificationRepository,
	directory UserDirectory,
	router *DeliveryRouter,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	validate *validator.Validate,
	logger zerolog.Logger,
) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":facts"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".facts"
	}

	return &notificationService{
		repo:        repo,
		directory:   directory,
		router:      router,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-social-api/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Dispatch persists the notification first; the live push afterwards is best effort
// and never undoes the write.
func (s *notificationService) Dispatch(ctx context.Context, fact dto.SocialFact) (DispatchResult, error) {
	if err := s.validator.Struct(fact); err != nil {
		return DispatchResult{}, err
	}
	if fact.ActorID == fact.TargetUserID {
		return DispatchResult{Skipped: true}, nil
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("notification.user_id", int64(fact.TargetUserID)),
		attribute.String("notification.kind", string(fact.Kind)),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.dispatch", trace.WithAttributes(attrs...))
	defer span.End()

	if _, err := s.directory.Summary(spanCtx, fact.TargetUserID); err != nil {
		span.RecordError(err)
		return DispatchResult{}, err
	}
	actor, err := s.directory.Summary(spanCtx, fact.ActorID)
	if err != nil {
		span.RecordError(err)
		return DispatchResult{}, err
	}

	payload := s.buildPayload(fact, actor)
	data, err := json.Marshal(payload)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("encode notification payload: %w", err)
	}

	model := models.Notification{
		UserID:      fact.TargetUserID,
		Type:        payload.Type,
		ActorID:     fact.ActorID,
		RelatedID:   fact.RelatedID,
		RelatedType: relatedType(fact),
		Data:        datatypes.JSON(data),
		CreatedAt:   payload.Timestamp,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return DispatchResult{}, fmt.Errorf("persist notification: %w", err)
	}
	observability.NotificationsPublishedTotal().WithLabelValues(model.Type).Inc()

	delivered := s.router.PushToUser(fact.TargetUserID, payload)
	span.SetAttributes(attribute.Int("notification.delivered", delivered))

	s.logger.Debug().
		Uint("notification_id", model.ID).
		Uint("user_id", model.UserID).
		Str("type", model.Type).
		Int("delivered", delivered).
		Msg("notification dispatched")

	return DispatchResult{
		Notification: newNotificationResponse(model),
		Delivered:    delivered,
	}, nil
}

func (s *notificationService) buildPayload(fact dto.SocialFact, actor dto.UserSummary) dto.NotificationPayload {
	payload := dto.NotificationPayload{
		Type:      string(fact.Kind),
		Timestamp: s.now(),
		UserID:    fact.TargetUserID,
		Actor:     actor,
	}

	switch fact.Kind {
	case dto.FactProfileVisit:
		payload.Message = fmt.Sprintf("%s visited your profile", actor.Name)
	case dto.FactFriendRequest:
		payload.Message = fmt.Sprintf("%s sent you a friend request", actor.Name)
	case dto.FactFriendRequestAccepted:
		payload.Message = fmt.Sprintf("%s accepted your friend request", actor.Name)
	case dto.FactPostComment:
		payload.Message = truncateRunes(plainText(s.sanitizer, fact.CommentText), commentPreviewRunes)
	case dto.FactPostLike:
		payload.Message = fmt.Sprintf("%s liked your post", actor.Name)
	case dto.FactPostShare:
		payload.Message = fmt.Sprintf("%s shared your post", actor.Name)
	case dto.FactReaction:
		reaction := strings.TrimSpace(fact.Reaction)
		if reaction == "" {
			reaction = defaultReaction
		}
		payload.Type = relatedType(fact) + "_reaction"
		payload.Message = fmt.Sprintf("%s reacted with %s", actor.Name, reaction)
	}

	if fact.RelatedID != nil {
		payload.Related = &dto.RelatedEntity{ID: *fact.RelatedID, Type: relatedType(fact)}
	}

	return payload
}

func (s *notificationService) List(ctx context.Context, userID uint, query dto.NotificationListQuery) ([]dto.NotificationResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	notifications, err := s.repo.ListByUser(ctx, userID, query.UnreadOnly, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	result := make([]dto.NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		result = append(result, newNotificationResponse(notification))
	}
	return result, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("notification.user_id", int64(userID)),
	}
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(attrs...))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotificationResponse{}, ErrNotificationNotFound
		}
		return dto.NotificationResponse{}, fmt.Errorf("mark notification read: %w", err)
	}

	return newNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return updated, nil
}

func (s *notificationService) Delete(ctx context.Context, id, userID uint) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("facts redis subscription closed")
			return
		}
		s.handleFact(ctx, []byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "social-facts", func(msg *nats.Msg) {
		s.handleFact(ctx, msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats facts subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain facts nats subscription")
		}
	}()
}

func (s *notificationService) handleFact(ctx context.Context, data []byte) {
	var fact dto.SocialFact
	if err := json.Unmarshal(data, &fact); err != nil {
		s.logger.Warn().Err(err).Msg("invalid social fact payload")
		return
	}

	if _, err := s.Dispatch(ctx, fact); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(fact.Kind)).Uint("user_id", fact.TargetUserID).Msg("failed to dispatch social fact")
	}
}

func newNotificationResponse(model models.Notification) dto.NotificationResponse {
	response := dto.NotificationResponse{
		ID:          model.ID,
		UserID:      model.UserID,
		Type:        model.Type,
		ActorID:     model.ActorID,
		RelatedID:   model.RelatedID,
		RelatedType: model.RelatedType,
		Read:        model.Read,
		CreatedAt:   model.CreatedAt,
	}

	if len(model.Data) > 0 {
		var payload dto.NotificationPayload
		if err := json.Unmarshal(model.Data, &payload); err == nil {
			response.Data = &payload
		}
	}

	return response
}

func relatedType(fact dto.SocialFact) string {
	if fact.RelatedType != "" {
		return fact.RelatedType
	}
	switch fact.Kind {
	case dto.FactPostComment, dto.FactPostLike, dto.FactPostShare, dto.FactReaction:
		return "post"
	default:
		return ""
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
