package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/observability"
)

// ErrSinkFull is returned by a SessionSink whose outbound queue has no room.
var ErrSinkFull = errors.New("session send queue full")

// ErrSinkClosed is returned by a SessionSink that has already shut down.
var ErrSinkClosed = errors.New("session closed")

// SessionSink is the outbound side of one live session. Deliver must not block.
type SessionSink interface {
	Deliver(envelope dto.Envelope) error
}

// ParticipantSource resolves the members of a conversation.
type ParticipantSource interface {
	ParticipantIDs(ctx context.Context, conversationID uint) ([]uint, error)
}

// DeliveryRouter fans outbound events out to the live sessions of their recipients.
type DeliveryRouter struct {
	presence     *PresenceRegistry
	participants ParticipantSource
	logger       zerolog.Logger

	mu    sync.RWMutex
	sinks map[string]SessionSink
}

// NewDeliveryRouter constructs a router over the shared presence registry.
func NewDeliveryRouter(presence *PresenceRegistry, participants ParticipantSource, logger zerolog.Logger) *DeliveryRouter {
	return &DeliveryRouter{
		presence:     presence,
		participants: participants,
		logger:       logger.With().Str("component", "delivery_router").Logger(),
		sinks:        make(map[string]SessionSink),
	}
}

// Attach registers the sink that receives events for sessionID.
func (r *DeliveryRouter) Attach(sessionID string, sink SessionSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sessionID] = sink
}

// Detach forgets the sink for sessionID.
func (r *DeliveryRouter) Detach(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, sessionID)
}

// PushToSession delivers event to a single session.
func (r *DeliveryRouter) PushToSession(sessionID string, event dto.OutboundEvent) bool {
	envelope, err := dto.EncodeEnvelope(event)
	if err != nil {
		r.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to encode outbound event")
		return false
	}
	return r.deliver(sessionID, envelope)
}

// PushToUser delivers event to every live session of userID and returns how many accepted it.
// A user without sessions is a silent no-op.
func (r *DeliveryRouter) PushToUser(userID uint, event dto.OutboundEvent) int {
	sessions := r.presence.SessionsOf(userID)
	if len(sessions) == 0 {
		return 0
	}

	envelope, err := dto.EncodeEnvelope(event)
	if err != nil {
		r.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to encode outbound event")
		return 0
	}

	return r.fanOut(sessions, "", envelope)
}

// PushToConversation delivers event to every participant's sessions except excludeSession.
// The sender's other sessions still receive it.
func (r *DeliveryRouter) PushToConversation(ctx context.Context, conversationID uint, event dto.OutboundEvent, excludeSession string) error {
	return r.pushToParticipants(ctx, conversationID, 0, event, excludeSession)
}

// PushTyping is PushToConversation that also skips every session of the typing user.
func (r *DeliveryRouter) PushTyping(ctx context.Context, conversationID, typingUserID uint, event dto.OutboundEvent, excludeSession string) error {
	return r.pushToParticipants(ctx, conversationID, typingUserID, event, excludeSession)
}

func (r *DeliveryRouter) pushToParticipants(ctx context.Context, conversationID, excludeUser uint, event dto.OutboundEvent, excludeSession string) error {
	participantIDs, err := r.participants.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("resolve participants of conversation %d: %w", conversationID, err)
	}

	var envelope *dto.Envelope
	delivered := 0
	for _, userID := range participantIDs {
		if excludeUser != 0 && userID == excludeUser {
			continue
		}

		sessions := r.presence.SessionsOf(userID)
		if len(sessions) == 0 {
			continue
		}

		if envelope == nil {
			encoded, err := dto.EncodeEnvelope(event)
			if err != nil {
				return err
			}
			envelope = &encoded
		}

		delivered += r.fanOut(sessions, excludeSession, *envelope)
	}

	r.logger.Debug().
		Uint("conversation_id", conversationID).
		Str("event", event.EventName()).
		Int("delivered", delivered).
		Msg("conversation fan-out complete")

	return nil
}

func (r *DeliveryRouter) fanOut(sessions []string, excludeSession string, envelope dto.Envelope) int {
	delivered := 0
	for _, sessionID := range sessions {
		if sessionID == excludeSession {
			continue
		}
		if r.deliver(sessionID, envelope) {
			delivered++
		}
	}
	return delivered
}

func (r *DeliveryRouter) deliver(sessionID string, envelope dto.Envelope) bool {
	r.mu.RLock()
	sink, ok := r.sinks[sessionID]
	r.mu.RUnlock()

	if !ok {
		r.dropped(sessionID, envelope.Event, ErrSinkClosed)
		return false
	}

	if err := sink.Deliver(envelope); err != nil {
		r.dropped(sessionID, envelope.Event, err)
		return false
	}

	observability.RealtimeDeliveries().WithLabelValues("delivered").Inc()
	return true
}

func (r *DeliveryRouter) dropped(sessionID, event string, err error) {
	observability.RealtimeDeliveries().WithLabelValues("dropped").Inc()
	r.logger.Debug().Err(err).Str("session_id", sessionID).Str("event", event).Msg("dropping event for unreachable session")
}
