package service

import (
	"sort"
	"sync"
)

// DisconnectResult reports what a Disconnect call removed.
type DisconnectResult struct {
	Known         bool
	UserID        uint
	WentOffline   bool
	StoppedTyping []uint
}

// PresenceStats summarises the registry for the presence endpoint and metrics.
type PresenceStats struct {
	Users               int `json:"users"`
	Sessions            int `json:"sessions"`
	TypingConversations int `json:"typing_conversations"`
}

// PresenceRegistry tracks live sessions per user and typing state per conversation.
// It is safe for concurrent use; every operation mutates all indexes under one lock.
type PresenceRegistry struct {
	mu            sync.RWMutex
	userSessions  map[uint]map[string]struct{}
	sessionUser   map[string]uint
	typing        map[uint]map[uint]struct{}
	sessionTyping map[string]map[uint]struct{}
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		userSessions:  make(map[uint]map[string]struct{}),
		sessionUser:   make(map[string]uint),
		typing:        make(map[uint]map[uint]struct{}),
		sessionTyping: make(map[string]map[uint]struct{}),
	}
}

// Connect binds sessionID to userID. Rebinding a session to another user moves it.
func (r *PresenceRegistry) Connect(userID uint, sessionID string) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessionUser[sessionID]; ok {
		if current == userID {
			return
		}
		r.removeSessionLocked(sessionID)
	}

	sessions, ok := r.userSessions[userID]
	if !ok {
		sessions = make(map[string]struct{})
		r.userSessions[userID] = sessions
	}
	sessions[sessionID] = struct{}{}
	r.sessionUser[sessionID] = userID
}

// Disconnect removes sessionID from whichever user owns it. Unknown sessions are ignored.
func (r *PresenceRegistry) Disconnect(sessionID string) DisconnectResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessionUser[sessionID]; !ok {
		return DisconnectResult{}
	}
	return r.removeSessionLocked(sessionID)
}

func (r *PresenceRegistry) removeSessionLocked(sessionID string) DisconnectResult {
	userID := r.sessionUser[sessionID]
	result := DisconnectResult{Known: true, UserID: userID}

	delete(r.sessionUser, sessionID)
	if sessions, ok := r.userSessions[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.userSessions, userID)
			result.WentOffline = true
		}
	}

	for conversationID := range r.sessionTyping[sessionID] {
		if r.clearTypingLocked(conversationID, userID) {
			result.StoppedTyping = append(result.StoppedTyping, conversationID)
		}
	}
	delete(r.sessionTyping, sessionID)

	sort.Slice(result.StoppedTyping, func(i, j int) bool { return result.StoppedTyping[i] < result.StoppedTyping[j] })
	return result
}

// IsOnline reports whether the user has at least one live session.
func (r *PresenceRegistry) IsOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.userSessions[userID]) > 0
}

// SessionsOf returns a snapshot of the user's live sessions.
func (r *PresenceRegistry) SessionsOf(userID uint) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.userSessions[userID]
	result := make([]string, 0, len(sessions))
	for sessionID := range sessions {
		result = append(result, sessionID)
	}
	sort.Strings(result)
	return result
}

// UserOf returns the user bound to sessionID.
func (r *PresenceRegistry) UserOf(sessionID string) (uint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.sessionUser[sessionID]
	return userID, ok
}

// SetTyping adds or removes userID from the conversation's typing set and reports whether it changed.
func (r *PresenceRegistry) SetTyping(conversationID, userID uint, typing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if typing {
		return r.addTypingLocked(conversationID, userID)
	}

	changed := r.clearTypingLocked(conversationID, userID)
	for sessionID := range r.userSessions[userID] {
		r.forgetSessionTypingLocked(sessionID, conversationID)
	}
	return changed
}

// SetSessionTyping is SetTyping for the user bound to sessionID. The session is
// remembered so that disconnecting it clears the typing state it left behind.
func (r *PresenceRegistry) SetSessionTyping(sessionID string, conversationID uint, typing bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessionUser[sessionID]
	if !ok {
		return false
	}

	if typing {
		conversations, ok := r.sessionTyping[sessionID]
		if !ok {
			conversations = make(map[uint]struct{})
			r.sessionTyping[sessionID] = conversations
		}
		conversations[conversationID] = struct{}{}
		return r.addTypingLocked(conversationID, userID)
	}

	for other := range r.userSessions[userID] {
		r.forgetSessionTypingLocked(other, conversationID)
	}
	return r.clearTypingLocked(conversationID, userID)
}

func (r *PresenceRegistry) addTypingLocked(conversationID, userID uint) bool {
	users, ok := r.typing[conversationID]
	if !ok {
		users = make(map[uint]struct{})
		r.typing[conversationID] = users
	}
	if _, exists := users[userID]; exists {
		return false
	}
	users[userID] = struct{}{}
	return true
}

func (r *PresenceRegistry) clearTypingLocked(conversationID, userID uint) bool {
	users, ok := r.typing[conversationID]
	if !ok {
		return false
	}
	if _, exists := users[userID]; !exists {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.typing, conversationID)
	}
	return true
}

func (r *PresenceRegistry) forgetSessionTypingLocked(sessionID string, conversationID uint) {
	conversations, ok := r.sessionTyping[sessionID]
	if !ok {
		return
	}
	delete(conversations, conversationID)
	if len(conversations) == 0 {
		delete(r.sessionTyping, sessionID)
	}
}

// TypingUsers lists users currently typing in the conversation.
func (r *PresenceRegistry) TypingUsers(conversationID uint) []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := r.typing[conversationID]
	result := make([]uint, 0, len(users))
	for userID := range users {
		result = append(result, userID)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// OnlineUsers maps every online user to its session count.
func (r *PresenceRegistry) OnlineUsers() map[uint]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[uint]int, len(r.userSessions))
	for userID, sessions := range r.userSessions {
		result[userID] = len(sessions)
	}
	return result
}

// Stats returns aggregate counts.
func (r *PresenceRegistry) Stats() PresenceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return PresenceStats{
		Users:               len(r.userSessions),
		Sessions:            len(r.sessionUser),
		TypingConversations: len(r.typing),
	}
}
