package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/gema-social-api/internal/database"
	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/models"
	"github.com/noah-isme/gema-social-api/internal/repository"
)

const testSecret = "test-secret"

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.ConnectSQLite(dsn)
	require.NoError(t, err)
	db.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, names ...string) []models.User {
	t.Helper()

	users := make([]models.User, 0, len(names))
	for _, name := range names {
		user := models.User{
			Email:     name + "@example.com",
			Username:  name,
			FirstName: name,
		}
		require.NoError(t, db.Create(&user).Error)
		users = append(users, user)
	}
	return users
}

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// realtimeStack bundles the services a realtime test needs, all backed by one database.
type realtimeStack struct {
	db            *gorm.DB
	presence      *PresenceRegistry
	router        *DeliveryRouter
	gate          *AuthGate
	directory     UserDirectory
	conversations ConversationService
	chat          ChatService
	notifications NotificationService
}

func newRealtimeStack(t *testing.T) *realtimeStack {
	t.Helper()

	db := newTestDB(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := testLogger()

	users := repository.NewUserRepository(db)
	presence := NewPresenceRegistry()
	directory := NewUserDirectory(users, nil, time.Minute, logger)
	conversations := NewConversationService(
		repository.NewTransactor(db),
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		users,
		directory,
		validate,
		logger,
	)
	router := NewDeliveryRouter(presence, conversations, logger)
	gate := NewAuthGate(testSecret, users, presence, time.Second, logger)
	chat := NewChatService(conversations, directory, presence, router, gate, validate, ChatOptions{}, logger)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), directory, router, nil, "", nil, validate, logger)

	return &realtimeStack{
		db:            db,
		presence:      presence,
		router:        router,
		gate:          gate,
		directory:     directory,
		conversations: conversations,
		chat:          chat,
		notifications: notifications,
	}
}

// connect opens an authenticated session for userID backed by a recording sink.
func (s *realtimeStack) connect(t *testing.T, userID uint) (*Session, *recordingSink) {
	t.Helper()

	session := NewSession()
	sink := newRecordingSink(16)
	require.NoError(t, s.chat.Open(session, userID, sink))
	return session, sink
}

func (s *realtimeStack) send(t *testing.T, session *Session, event string, payload interface{}) {
	t.Helper()
	s.chat.HandleEvent(context.Background(), session, envelopeFor(t, event, payload))
}

// recordingSink is a bounded in-memory SessionSink.
type recordingSink struct {
	mu       sync.Mutex
	capacity int
	events   []dto.Envelope
	closed   bool
}

func newRecordingSink(capacity int) *recordingSink {
	return &recordingSink{capacity: capacity}
}

func (s *recordingSink) Deliver(envelope dto.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.capacity > 0 && len(s.events) >= s.capacity {
		return ErrSinkFull
	}
	s.events = append(s.events, envelope)
	return nil
}

func (s *recordingSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.events))
	for _, envelope := range s.events {
		names = append(names, envelope.Event)
	}
	return names
}

func (s *recordingSink) last(t *testing.T) dto.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	require.NotEmpty(t, s.events, "expected at least one delivered event")
	return s.events[len(s.events)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func envelopeFor(t *testing.T, event string, payload interface{}) dto.Envelope {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return dto.Envelope{Event: event, Data: data}
}
