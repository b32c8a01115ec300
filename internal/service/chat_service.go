package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/observability"
)

const (
	defaultSendBufferSize = 32
	defaultPingInterval   = 30 * time.Second
)

// ErrUnknownEvent is reported for inbound events the server does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// ChatOptions tunes per-connection resources.
type ChatOptions struct {
	SendBuffer   int
	PingInterval time.Duration
}

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	Session       *Session
	UserID        uint
	CorrelationID string
	Context       context.Context
}

// ChatService runs realtime sessions and turns inbound events into persisted changes and fan-out.
type ChatService interface {
	ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions)
	Open(session *Session, userID uint, sink SessionSink) error
	Close(ctx context.Context, session *Session)
	HandleEvent(ctx context.Context, session *Session, envelope dto.Envelope)
	AnnounceConversation(ctx context.Context, conversation dto.ConversationResponse)
}

type chatService struct {
	conversations ConversationService
	directory     UserDirectory
	presence      *PresenceRegistry
	router        *DeliveryRouter
	gate          *AuthGate
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	options       ChatOptions
}

type chatClient struct {
	conn    *websocket.Conn
	send    chan dto.Envelope
	session *Session
	service *chatService
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
}

// NewChatService creates a realtime chat service instance.
func NewChatService(
	conversations ConversationService,
	directory UserDirectory,
	presence *PresenceRegistry,
	router *DeliveryRouter,
	gate *AuthGate,
	validate *validator.Validate,
	options ChatOptions,
	logger zerolog.Logger,
) ChatService {
	if options.SendBuffer <= 0 {
		options.SendBuffer = defaultSendBufferSize
	}
	if options.PingInterval <= 0 {
		options.PingInterval = defaultPingInterval
	}

	return &chatService{
		conversations: conversations,
		directory:     directory,
		presence:      presence,
		router:        router,
		gate:          gate,
		validator:     validate,
		logger:        logger.With().Str("component", "chat_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-social-api/internal/service/chat"),
		options:       options,
	}
}

func (s *chatService) ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if opts.CorrelationID != "" {
		baseCtx = middleware.ContextWithCorrelation(baseCtx, opts.CorrelationID)
	}

	session := opts.Session
	if session == nil {
		session = NewSession()
	}

	client := &chatClient{
		conn:    conn,
		send:    make(chan dto.Envelope, s.options.SendBuffer),
		session: session,
		service: s,
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	if err := s.Open(session, opts.UserID, client); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to open realtime session")
		client.shutdown()
		return
	}

	go client.writer()
	client.reader()
}

// Open attaches sink and binds the session so the router can reach it.
func (s *chatService) Open(session *Session, userID uint, sink SessionSink) error {
	s.router.Attach(session.ID, sink)
	if err := s.gate.Bind(session, userID); err != nil {
		s.router.Detach(session.ID)
		return err
	}
	return nil
}

// Close unregisters the session and stops any typing indicator it left behind.
func (s *chatService) Close(ctx context.Context, session *Session) {
	result := s.gate.Close(session)
	s.router.Detach(session.ID)

	if !result.Known {
		return
	}

	for _, conversationID := range result.StoppedTyping {
		indicator := s.typingIndicator(ctx, conversationID, result.UserID, false)
		if err := s.router.PushTyping(ctx, conversationID, result.UserID, indicator, session.ID); err != nil {
			s.logger.Debug().Err(err).Uint("conversation_id", conversationID).Msg("failed to broadcast typing stop")
		}
	}
}

func (s *chatService) HandleEvent(ctx context.Context, session *Session, envelope dto.Envelope) {
	userID, ok := session.UserID()
	if !ok {
		s.router.PushToSession(session.ID, dto.ErrorEvent{Message: "not authenticated", Event: envelope.Event})
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("realtime.event", envelope.Event),
		attribute.String("realtime.session_id", session.ID),
		attribute.Int64("realtime.user_id", int64(userID)),
	}
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		attrs = append(attrs, attribute.String("correlation_id", correlation))
	}
	spanCtx, span := s.tracer.Start(ctx, "realtime."+envelope.Event, trace.WithAttributes(attrs...))
	defer span.End()

	var err error
	switch envelope.Event {
	case dto.EventSendMessage:
		err = s.handleSendMessage(spanCtx, session, userID, envelope)
	case dto.EventMarkRead:
		err = s.handleMarkRead(spanCtx, session, userID, envelope)
	case dto.EventMarkConversationRead:
		err = s.handleMarkConversationRead(spanCtx, session, userID, envelope)
	case dto.EventDeleteMessage:
		err = s.handleDeleteMessage(spanCtx, session, userID, envelope)
	case dto.EventEditMessage:
		err = s.handleEditMessage(spanCtx, session, userID, envelope)
	case dto.EventTyping:
		err = s.handleTyping(spanCtx, session, userID, envelope)
	default:
		err = ErrUnknownEvent
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RealtimeEvents().WithLabelValues(eventLabel(envelope.Event), "error").Inc()
		s.reportError(session, envelope.Event, err)
		return
	}

	observability.RealtimeEvents().WithLabelValues(eventLabel(envelope.Event), "ok").Inc()
}

// AnnounceConversation pushes conversation_created to every participant's sessions.
func (s *chatService) AnnounceConversation(ctx context.Context, conversation dto.ConversationResponse) {
	event := dto.ConversationCreatedEvent{ConversationResponse: conversation}
	for _, participant := range conversation.Participants {
		s.router.PushToUser(participant.ID, event)
	}
}

func (s *chatService) handleSendMessage(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.SendMessageRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	payload, err := s.conversations.CreateMessage(ctx, userID, req)
	if err != nil {
		return err
	}

	s.router.PushToSession(session.ID, dto.MessageSentEvent{MessagePayload: payload, Confirmed: true})
	return s.broadcast(ctx, payload.ConversationID, dto.ChatMessageEvent{MessagePayload: payload}, session.ID)
}

func (s *chatService) handleMarkRead(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.MarkReadRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	payload, marked, err := s.conversations.MarkRead(ctx, userID, req)
	if err != nil {
		return err
	}

	s.router.PushToSession(session.ID, dto.MessageReadConfirmedEvent{MessageReadPayload: payload})
	if !marked {
		return nil
	}
	return s.broadcast(ctx, payload.ConversationID, dto.MessageReadEvent{MessageReadPayload: payload}, session.ID)
}

func (s *chatService) handleMarkConversationRead(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.MarkConversationReadRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	payload, err := s.conversations.MarkConversationRead(ctx, req.ConversationID, userID)
	if err != nil {
		return err
	}

	s.router.PushToSession(session.ID, dto.ConversationReadConfirmedEvent{ConversationReadPayload: payload})
	if payload.Marked == 0 {
		return nil
	}
	return s.broadcast(ctx, payload.ConversationID, dto.ConversationReadEvent{ConversationReadPayload: payload}, session.ID)
}

func (s *chatService) handleDeleteMessage(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.DeleteMessageRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	payload, err := s.conversations.DeleteMessage(ctx, userID, req)
	if err != nil {
		return err
	}

	s.router.PushToSession(session.ID, dto.MessageDeletedConfirmedEvent{MessageDeletedPayload: payload})
	return s.broadcast(ctx, payload.ConversationID, dto.MessageDeletedEvent{MessageDeletedPayload: payload}, session.ID)
}

func (s *chatService) handleEditMessage(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.EditMessageRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	payload, err := s.conversations.EditMessage(ctx, userID, req)
	if err != nil {
		return err
	}

	s.router.PushToSession(session.ID, dto.MessageEditedConfirmedEvent{MessagePayload: payload})
	return s.broadcast(ctx, payload.ConversationID, dto.MessageEditedEvent{MessagePayload: payload}, session.ID)
}

// handleTyping never confirms to the sender and never echoes to the typing user's devices.
func (s *chatService) handleTyping(ctx context.Context, session *Session, userID uint, envelope dto.Envelope) error {
	var req dto.TypingRequest
	if err := s.decode(envelope, &req); err != nil {
		return err
	}

	if err := s.conversations.RequireParticipant(ctx, req.ConversationID, userID); err != nil {
		return err
	}

	if !s.presence.SetSessionTyping(session.ID, req.ConversationID, req.Typing) {
		return nil
	}

	indicator := s.typingIndicator(ctx, req.ConversationID, userID, req.Typing)
	if err := s.router.PushTyping(ctx, req.ConversationID, userID, indicator, session.ID); err != nil {
		s.logger.Debug().Err(err).Uint("conversation_id", req.ConversationID).Msg("typing fan-out failed")
	}
	return nil
}

// broadcast runs after the write has committed, so a fan-out failure is logged and absorbed.
func (s *chatService) broadcast(ctx context.Context, conversationID uint, event dto.OutboundEvent, excludeSession string) error {
	if err := s.router.PushToConversation(ctx, conversationID, event, excludeSession); err != nil {
		s.logger.Warn().Err(err).Uint("conversation_id", conversationID).Str("event", event.EventName()).Msg("conversation fan-out failed")
	}
	return nil
}

func (s *chatService) typingIndicator(ctx context.Context, conversationID, userID uint, typing bool) dto.TypingIndicator {
	indicator := dto.TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		Typing:         typing,
		Timestamp:      time.Now().UTC(),
	}
	if summary, err := s.directory.Summary(ctx, userID); err == nil {
		indicator.UserName = summary.Name
	}
	return indicator
}

func (s *chatService) decode(envelope dto.Envelope, target interface{}) error {
	if err := envelope.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if err := s.validator.Struct(target); err != nil {
		return err
	}
	return nil
}

var errInvalidPayload = errors.New("invalid payload")

func (s *chatService) reportError(session *Session, event string, err error) {
	message := clientErrorMessage(err)
	if message == "" {
		s.logger.Error().Err(err).Str("event", event).Str("session_id", session.ID).Msg("realtime event failed")
		message = fmt.Sprintf("failed to process %s", event)
	} else {
		s.logger.Debug().Err(err).Str("event", event).Str("session_id", session.ID).Msg("realtime event rejected")
	}

	s.router.PushToSession(session.ID, dto.ErrorEvent{Message: message, Event: event})
}

// clientErrorMessage returns the text safe to show a client, or "" for internal failures.
func clientErrorMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return "invalid payload: " + validationErrors.Error()
	}

	for _, known := range []error{
		errInvalidPayload,
		ErrUnknownEvent,
		ErrConversationNotFound,
		ErrMessageNotFound,
		ErrUserNotFound,
		ErrNotParticipant,
		ErrNotMessageSender,
		ErrInvalidParticipants,
		ErrEmptyMessage,
		ErrNotGroupConversation,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return ""
}

func eventLabel(event string) string {
	switch event {
	case dto.EventSendMessage, dto.EventMarkRead, dto.EventMarkConversationRead,
		dto.EventDeleteMessage, dto.EventEditMessage, dto.EventTyping:
		return event
	default:
		return "unknown"
	}
}

// Deliver implements SessionSink without blocking the caller.
func (c *chatClient) Deliver(envelope dto.Envelope) error {
	select {
	case <-c.closed:
		return ErrSinkClosed
	default:
	}

	select {
	case c.send <- envelope:
		return nil
	default:
		return ErrSinkFull
	}
}

func (c *chatClient) reader() {
	defer c.shutdown()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.service.logger.Debug().Err(err).Str("session_id", c.session.ID).Msg("realtime read loop ended")
			return
		}

		var envelope dto.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Event == "" {
			c.service.router.PushToSession(c.session.ID, dto.ErrorEvent{Message: "malformed frame"})
			continue
		}

		c.service.HandleEvent(c.baseCtx, c.session, envelope)
	}
}

func (c *chatClient) writer() {
	defer c.shutdown()

	ticker := time.NewTicker(c.service.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case envelope := <-c.send:
			if err := c.conn.WriteJSON(envelope); err != nil {
				c.service.logger.Debug().Err(err).Str("session_id", c.session.ID).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		c.service.Close(c.baseCtx, c.session)
		_ = c.conn.Close()
	})
}
