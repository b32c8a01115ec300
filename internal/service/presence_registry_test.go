package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceRegistryConnectDisconnect(t *testing.T) {
	registry := NewPresenceRegistry()

	registry.Connect(1, "s1")
	registry.Connect(1, "s2")
	registry.Connect(1, "s2")
	registry.Connect(2, "s3")

	require.True(t, registry.IsOnline(1))
	require.Equal(t, []string{"s1", "s2"}, registry.SessionsOf(1))
	require.Equal(t, PresenceStats{Users: 2, Sessions: 3}, registry.Stats())

	result := registry.Disconnect("s1")
	require.True(t, result.Known)
	require.Equal(t, uint(1), result.UserID)
	require.False(t, result.WentOffline)
	require.True(t, registry.IsOnline(1))

	result = registry.Disconnect("s2")
	require.True(t, result.WentOffline)
	require.False(t, registry.IsOnline(1))
	require.Empty(t, registry.SessionsOf(1))

	_, ok := registry.UserOf("s2")
	require.False(t, ok)
}

func TestPresenceRegistryDisconnectUnknownSession(t *testing.T) {
	registry := NewPresenceRegistry()

	result := registry.Disconnect("missing")
	require.False(t, result.Known)
	require.Equal(t, PresenceStats{}, registry.Stats())
}

func TestPresenceRegistryRebindMovesSession(t *testing.T) {
	registry := NewPresenceRegistry()

	registry.Connect(1, "s1")
	registry.Connect(2, "s1")

	require.False(t, registry.IsOnline(1))
	require.Equal(t, []string{"s1"}, registry.SessionsOf(2))

	userID, ok := registry.UserOf("s1")
	require.True(t, ok)
	require.Equal(t, uint(2), userID)
}

func TestPresenceRegistryTypingIsASet(t *testing.T) {
	registry := NewPresenceRegistry()

	require.True(t, registry.SetTyping(10, 1, true))
	require.False(t, registry.SetTyping(10, 1, true))
	require.True(t, registry.SetTyping(10, 2, true))
	require.Equal(t, []uint{1, 2}, registry.TypingUsers(10))

	require.True(t, registry.SetTyping(10, 1, false))
	require.False(t, registry.SetTyping(10, 1, false))
	require.True(t, registry.SetTyping(10, 2, false))

	require.Empty(t, registry.TypingUsers(10))
	require.Zero(t, registry.Stats().TypingConversations)
}

func TestPresenceRegistryDisconnectClearsSessionTyping(t *testing.T) {
	registry := NewPresenceRegistry()
	registry.Connect(1, "s1")

	require.True(t, registry.SetSessionTyping("s1", 10, true))
	require.True(t, registry.SetSessionTyping("s1", 11, true))
	require.False(t, registry.SetSessionTyping("unknown", 10, true))

	result := registry.Disconnect("s1")
	require.Equal(t, []uint{10, 11}, result.StoppedTyping)
	require.Empty(t, registry.TypingUsers(10))
	require.Empty(t, registry.TypingUsers(11))
	require.Equal(t, PresenceStats{}, registry.Stats())
}

func TestPresenceRegistryStoppedTypingIsNotReportedAgain(t *testing.T) {
	registry := NewPresenceRegistry()
	registry.Connect(1, "s1")

	require.True(t, registry.SetSessionTyping("s1", 10, true))
	require.True(t, registry.SetSessionTyping("s1", 10, false))

	result := registry.Disconnect("s1")
	require.Empty(t, result.StoppedTyping)
}

func TestPresenceRegistryConcurrentAccess(t *testing.T) {
	registry := NewPresenceRegistry()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", i)
			userID := uint(i%4 + 1)
			for round := 0; round < 50; round++ {
				registry.Connect(userID, sessionID)
				registry.SetSessionTyping(sessionID, 99, round%2 == 0)
				_ = registry.SessionsOf(userID)
				_ = registry.TypingUsers(99)
				registry.Disconnect(sessionID)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, PresenceStats{}, registry.Stats())
	require.Empty(t, registry.OnlineUsers())
}
