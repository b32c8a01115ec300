package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/gema-social-api/internal/config"
	"github.com/noah-isme/gema-social-api/internal/database"
	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/handler"
	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/models"
	"github.com/noah-isme/gema-social-api/internal/repository"
	"github.com/noah-isme/gema-social-api/internal/router"
	"github.com/noah-isme/gema-social-api/internal/service"
)

const testSecret = "router-secret"

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Message string          `json:"message"`
}

type testServer struct {
	app      *fiber.App
	db       *gorm.DB
	presence *service.PresenceRegistry
	users    map[string]models.User
}

func newTestServer(t *testing.T, factsPerMinute int) *testServer {
	t.Helper()

	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	db.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := make(map[string]models.User)
	for _, name := range []string{"alice", "bob", "carol"} {
		user := models.User{Email: name + "@example.com", Username: name, FirstName: name}
		require.NoError(t, db.Create(&user).Error)
		users[name] = user
	}

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	presence := service.NewPresenceRegistry()
	directory := service.NewUserDirectory(userRepo, nil, time.Minute, logger)
	conversations := service.NewConversationService(
		repository.NewTransactor(db),
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		userRepo,
		directory,
		validate,
		logger,
	)
	delivery := service.NewDeliveryRouter(presence, conversations, logger)
	gate := service.NewAuthGate(testSecret, userRepo, presence, time.Second, logger)
	chat := service.NewChatService(conversations, directory, presence, delivery, gate, validate, service.ChatOptions{}, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), directory, delivery, nil, "", nil, validate, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, config.Config{AppName: "Social API", AppEnv: "test"}, router.Dependencies{
		ChatHandler:         handler.NewChatHandler(chat, gate, presence, logger),
		ConversationHandler: handler.NewConversationHandler(conversations, chat, validate, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, validate, logger, factsPerMinute),
		Presence:            presence,
		JWTMiddleware:       middleware.JWTProtected(gate),
	})

	return &testServer{app: app, db: db, presence: presence, users: users}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	claims["exp"] = time.Now().Add(time.Hour).Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) tokenFor(t *testing.T, name string) string {
	return signToken(t, jwt.MapClaims{"sub": fmt.Sprint(s.users[name].ID)})
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(raw, &value))
	return value
}

func TestHealthReportsPresence(t *testing.T) {
	server := newTestServer(t, 10)

	status, body := server.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	health := decode[handler.HealthResponse](t, body.Data)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "Social API", health.Service)
	require.NotNil(t, health.Presence)
	require.Zero(t, health.Presence.Sessions)
}

func TestConversationRoutesRequireAuthentication(t *testing.T) {
	server := newTestServer(t, 10)

	status, body := server.do(t, http.MethodGet, "/api/v2/conversations/", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.False(t, body.Success)

	status, _ = server.do(t, http.MethodGet, "/api/v2/conversations/", "not-a-token", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestDirectConversationLifecycle(t *testing.T) {
	server := newTestServer(t, 10)
	alice := server.tokenFor(t, "alice")
	bob := server.tokenFor(t, "bob")
	carol := server.tokenFor(t, "carol")
	bobID := server.users["bob"].ID

	status, body := server.do(t, http.MethodPost, fmt.Sprintf("/api/v2/conversations/direct/%d", bobID), alice, nil)
	require.Equal(t, fiber.StatusCreated, status)
	created := decode[dto.ConversationResponse](t, body.Data)
	require.False(t, created.IsGroup)
	require.Len(t, created.Participants, 2)

	status, body = server.do(t, http.MethodPost, fmt.Sprintf("/api/v2/conversations/direct/%d", server.users["alice"].ID), bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, created.ID, decode[dto.ConversationResponse](t, body.Data).ID)

	status, _ = server.do(t, http.MethodPost, fmt.Sprintf("/api/v2/conversations/direct/%d", server.users["alice"].ID), alice, nil)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = server.do(t, http.MethodPost, "/api/v2/conversations/direct/999", alice, nil)
	require.Equal(t, fiber.StatusNotFound, status)

	messagesPath := fmt.Sprintf("/api/v2/conversations/%d/messages", created.ID)
	status, _ = server.do(t, http.MethodGet, messagesPath, carol, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, body = server.do(t, http.MethodGet, messagesPath+"?limit=10", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Empty(t, body.Data)
	require.JSONEq(t, `{"limit":10,"offset":0,"count":0}`, string(body.Meta))

	status, body = server.do(t, http.MethodGet, "/api/v2/conversations/?limit=500", alice, nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, body.Success)

	status, body = server.do(t, http.MethodGet, "/api/v2/conversations/", alice, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decode[[]dto.ConversationResponse](t, body.Data), 1)
}

func TestGroupConversationRoutes(t *testing.T) {
	server := newTestServer(t, 10)
	alice := server.tokenFor(t, "alice")
	bob := server.tokenFor(t, "bob")
	bobID, carolID := server.users["bob"].ID, server.users["carol"].ID

	name := "Weekend Hike"
	status, body := server.do(t, http.MethodPost, "/api/v2/conversations/", alice, dto.ConversationCreateRequest{
		ParticipantIDs: []uint{bobID, carolID},
		Name:           &name,
	})
	require.Equal(t, fiber.StatusCreated, status)
	group := decode[dto.ConversationResponse](t, body.Data)
	require.True(t, group.IsGroup)
	require.Len(t, group.Participants, 3)

	status, body = server.do(t, http.MethodGet, "/api/v2/conversations/search?q=hike", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decode[[]dto.ConversationResponse](t, body.Data), 1)

	renamed := "Mountain Hike"
	status, body = server.do(t, http.MethodPatch, fmt.Sprintf("/api/v2/conversations/%d", group.ID), bob, dto.ConversationUpdateRequest{Name: &renamed})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, renamed, *decode[dto.ConversationResponse](t, body.Data).Name)

	status, _ = server.do(t, http.MethodDelete, fmt.Sprintf("/api/v2/conversations/%d/participants/%d", group.ID, carolID), alice, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = server.do(t, http.MethodGet, fmt.Sprintf("/api/v2/conversations/%d/unread", group.ID), bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	unread := decode[dto.UnreadCountResponse](t, body.Data)
	require.Equal(t, group.ID, unread.ConversationID)
	require.Zero(t, unread.UnreadCount)

	status, _ = server.do(t, http.MethodGet, "/api/v2/conversations/abc", alice, nil)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestNotificationFactsRequireServiceRole(t *testing.T) {
	server := newTestServer(t, 2)
	alice, bob := server.users["alice"], server.users["bob"]
	serviceToken := signToken(t, jwt.MapClaims{"sub": "notifier@services.local", "role": service.RoleService})
	fact := dto.SocialFact{Kind: dto.FactPostLike, TargetUserID: bob.ID, ActorID: alice.ID}

	status, _ := server.do(t, http.MethodPost, "/api/v2/notifications/facts", server.tokenFor(t, "alice"), fact)
	require.Equal(t, fiber.StatusForbidden, status)

	status, body := server.do(t, http.MethodPost, "/api/v2/notifications/facts", serviceToken, fact)
	require.Equal(t, fiber.StatusCreated, status)
	result := decode[service.DispatchResult](t, body.Data)
	require.Equal(t, "post_like", result.Notification.Type)
	require.Equal(t, bob.ID, result.Notification.UserID)

	status, body = server.do(t, http.MethodPost, "/api/v2/notifications/facts", serviceToken,
		dto.SocialFact{Kind: dto.FactProfileVisit, TargetUserID: bob.ID, ActorID: bob.ID})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, decode[service.DispatchResult](t, body.Data).Skipped)

	status, _ = server.do(t, http.MethodPost, "/api/v2/notifications/facts", serviceToken, fact)
	require.Equal(t, fiber.StatusTooManyRequests, status)

	status, _ = server.do(t, http.MethodGet, "/api/v2/notifications/", serviceToken, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestNotificationInboxRoutes(t *testing.T) {
	server := newTestServer(t, 10)
	serviceToken := signToken(t, jwt.MapClaims{"sub": "notifier@services.local", "role": service.RoleService})
	bob := server.tokenFor(t, "bob")
	alice := server.tokenFor(t, "alice")

	var ids []uint
	for _, kind := range []dto.FactKind{dto.FactFriendRequest, dto.FactPostShare} {
		status, body := server.do(t, http.MethodPost, "/api/v2/notifications/facts", serviceToken,
			dto.SocialFact{Kind: kind, TargetUserID: server.users["bob"].ID, ActorID: server.users["alice"].ID})
		require.Equal(t, fiber.StatusCreated, status)
		ids = append(ids, decode[service.DispatchResult](t, body.Data).Notification.ID)
	}

	status, _ := server.do(t, http.MethodPost, "/api/v2/notifications/facts", serviceToken,
		dto.SocialFact{Kind: dto.FactPostLike, TargetUserID: 9999, ActorID: server.users["alice"].ID})
	require.Equal(t, fiber.StatusNotFound, status)

	status, body := server.do(t, http.MethodGet, "/api/v2/notifications/unread-count", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, int64(2), decode[dto.UnreadCountResponse](t, body.Data).UnreadCount)

	status, _ = server.do(t, http.MethodPatch, fmt.Sprintf("/api/v2/notifications/%d/read", ids[0]), alice, nil)
	require.Equal(t, fiber.StatusNotFound, status)

	status, body = server.do(t, http.MethodPatch, fmt.Sprintf("/api/v2/notifications/%d/read", ids[0]), bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, decode[dto.NotificationResponse](t, body.Data).Read)

	status, body = server.do(t, http.MethodGet, "/api/v2/notifications/?unread_only=true", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decode[[]dto.NotificationResponse](t, body.Data), 1)

	status, _ = server.do(t, http.MethodPatch, "/api/v2/notifications/read-all", bob, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = server.do(t, http.MethodDelete, fmt.Sprintf("/api/v2/notifications/%d", ids[1]), bob, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = server.do(t, http.MethodGet, "/api/v2/notifications/", bob, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decode[[]dto.NotificationResponse](t, body.Data), 1)
}

func TestPresenceRoute(t *testing.T) {
	server := newTestServer(t, 10)

	status, body := server.do(t, http.MethodGet, fmt.Sprintf("/api/v2/presence/%d", server.users["bob"].ID), server.tokenFor(t, "alice"), nil)
	require.Equal(t, fiber.StatusOK, status)
	presence := decode[dto.PresenceResponse](t, body.Data)
	require.False(t, presence.Online)
	require.Zero(t, presence.Sessions)
}

// startListener serves the app on a loopback port for websocket clients.
func startListener(t *testing.T, app *fiber.App) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.ShutdownWithTimeout(time.Second)
	})
	return ln.Addr().String()
}

func dialRealtime(t *testing.T, addr, token string) *gws.Conn {
	t.Helper()

	conn, resp, err := gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws?token=%s", addr, token), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

// readUntil skips envelopes until one named event arrives.
func readUntil(t *testing.T, conn *gws.Conn, event string) dto.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var envelope dto.Envelope
		require.NoError(t, conn.ReadJSON(&envelope))
		if envelope.Event == event {
			return envelope
		}
	}
}

func TestRealtimeRejectsBadCredentialsBeforeUpgrade(t *testing.T) {
	server := newTestServer(t, 10)
	addr := startListener(t, server.app)

	_, resp, err := gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws?token=garbage", addr), nil)
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws", addr), nil)
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Zero(t, server.presence.Stats().Sessions)
}

func TestRealtimeMessageRoundTrip(t *testing.T) {
	server := newTestServer(t, 10)
	aliceID, bobID := server.users["alice"].ID, server.users["bob"].ID

	status, body := server.do(t, http.MethodPost, fmt.Sprintf("/api/v2/conversations/direct/%d", bobID), server.tokenFor(t, "alice"), nil)
	require.Equal(t, fiber.StatusCreated, status)
	conversation := decode[dto.ConversationResponse](t, body.Data)

	addr := startListener(t, server.app)
	aliceConn := dialRealtime(t, addr, server.tokenFor(t, "alice"))
	defer aliceConn.Close()
	bobConn := dialRealtime(t, addr, server.tokenFor(t, "bob"))
	defer bobConn.Close()

	require.Eventually(t, func() bool {
		return server.presence.IsOnline(aliceID) && server.presence.IsOnline(bobID)
	}, 2*time.Second, 10*time.Millisecond)

	data, err := json.Marshal(dto.SendMessageRequest{ConversationID: conversation.ID, Content: "hey bob"})
	require.NoError(t, err)
	require.NoError(t, aliceConn.WriteJSON(dto.Envelope{Event: dto.EventSendMessage, Data: data}))

	sent := decode[dto.MessageSentEvent](t, readUntil(t, aliceConn, dto.EventMessageSent).Data)
	require.True(t, sent.Confirmed)
	require.Equal(t, "hey bob", sent.Content)
	require.Equal(t, aliceID, sent.Sender.ID)

	received := decode[dto.ChatMessageEvent](t, readUntil(t, bobConn, dto.EventChatMessage).Data)
	require.Equal(t, sent.ID, received.ID)
	require.Equal(t, conversation.ID, received.ConversationID)

	require.NoError(t, aliceConn.WriteJSON(dto.Envelope{Event: "dance"}))
	require.Equal(t, dto.EventError, readUntil(t, aliceConn, dto.EventError).Event)

	require.NoError(t, bobConn.Close())
	require.Eventually(t, func() bool {
		return !server.presence.IsOnline(bobID)
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, server.presence.IsOnline(aliceID))
}

func TestMetricsExposePresenceGauges(t *testing.T) {
	server := newTestServer(t, 10)

	resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "presence_sessions")
	require.Contains(t, string(body), "presence_online_users")
}
