package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-social-api/internal/dto"
)

type staticParticipants map[uint][]uint

func (p staticParticipants) ParticipantIDs(_ context.Context, conversationID uint) ([]uint, error) {
	ids, ok := p[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return ids, nil
}

func newTestRouter(participants staticParticipants) (*DeliveryRouter, *PresenceRegistry) {
	presence := NewPresenceRegistry()
	return NewDeliveryRouter(presence, participants, testLogger()), presence
}

func attach(router *DeliveryRouter, presence *PresenceRegistry, userID uint, sessionID string, capacity int) *recordingSink {
	sink := newRecordingSink(capacity)
	router.Attach(sessionID, sink)
	presence.Connect(userID, sessionID)
	return sink
}

func TestDeliveryRouterPushToUserReachesEverySession(t *testing.T) {
	router, presence := newTestRouter(nil)
	first := attach(router, presence, 1, "a", 4)
	second := attach(router, presence, 1, "b", 4)
	other := attach(router, presence, 2, "c", 4)

	delivered := router.PushToUser(1, dto.ErrorEvent{Message: "hello"})
	require.Equal(t, 2, delivered)
	require.Equal(t, []string{dto.EventError}, first.names())
	require.Equal(t, []string{dto.EventError}, second.names())
	require.Empty(t, other.names())

	var payload dto.ErrorEvent
	require.NoError(t, json.Unmarshal(first.last(t).Data, &payload))
	require.Equal(t, "hello", payload.Message)
}

func TestDeliveryRouterPushToOfflineUserIsNoop(t *testing.T) {
	router, _ := newTestRouter(nil)
	require.Zero(t, router.PushToUser(42, dto.ErrorEvent{Message: "nobody"}))
}

func TestDeliveryRouterFullSinkDoesNotAffectOthers(t *testing.T) {
	router, presence := newTestRouter(staticParticipants{7: {1, 2}})
	slow := attach(router, presence, 1, "slow", 1)
	fast := attach(router, presence, 2, "fast", 8)

	for i := 0; i < 3; i++ {
		require.NoError(t, router.PushToConversation(context.Background(), 7, dto.ErrorEvent{Message: "burst"}, ""))
	}

	require.Len(t, slow.names(), 1)
	require.Len(t, fast.names(), 3)
}

func TestDeliveryRouterClosedSinkIsDropped(t *testing.T) {
	router, presence := newTestRouter(nil)
	closed := attach(router, presence, 1, "closed", 4)
	open := attach(router, presence, 1, "open", 4)
	closed.close()

	require.Equal(t, 1, router.PushToUser(1, dto.ErrorEvent{Message: "x"}))
	require.Len(t, open.names(), 1)

	router.Detach("open")
	require.False(t, router.PushToSession("open", dto.ErrorEvent{Message: "gone"}))
}

func TestDeliveryRouterConversationExcludesOriginSession(t *testing.T) {
	router, presence := newTestRouter(staticParticipants{7: {1, 2, 3}})
	origin := attach(router, presence, 1, "origin", 4)
	sibling := attach(router, presence, 1, "sibling", 4)
	peer := attach(router, presence, 2, "peer", 4)
	outsider := attach(router, presence, 9, "outsider", 4)

	require.NoError(t, router.PushToConversation(context.Background(), 7, dto.ErrorEvent{Message: "m"}, "origin"))

	require.Empty(t, origin.names())
	require.Len(t, sibling.names(), 1)
	require.Len(t, peer.names(), 1)
	require.Empty(t, outsider.names())
}

func TestDeliveryRouterTypingSkipsTypingUser(t *testing.T) {
	router, presence := newTestRouter(staticParticipants{7: {1, 2}})
	typist := attach(router, presence, 1, "typist", 4)
	typistOther := attach(router, presence, 1, "typist-2", 4)
	peer := attach(router, presence, 2, "peer", 4)

	indicator := dto.TypingIndicator{ConversationID: 7, UserID: 1, Typing: true}
	require.NoError(t, router.PushTyping(context.Background(), 7, 1, indicator, "typist"))

	require.Empty(t, typist.names())
	require.Empty(t, typistOther.names())
	require.Equal(t, []string{dto.EventTypingStart}, peer.names())
}

func TestDeliveryRouterUnknownConversation(t *testing.T) {
	router, _ := newTestRouter(staticParticipants{})
	err := router.PushToConversation(context.Background(), 404, dto.ErrorEvent{Message: "m"}, "")
	require.True(t, errors.Is(err, ErrConversationNotFound))
}
