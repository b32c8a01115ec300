package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/observability"
	"github.com/noah-isme/gema-social-api/internal/service"
	"github.com/noah-isme/gema-social-api/internal/utils"
)

const localRealtimeUser = "realtime_user_id"

// ChatHandler wires the realtime socket endpoint and presence lookups.
type ChatHandler struct {
	service  service.ChatService
	gate     *service.AuthGate
	presence *service.PresenceRegistry
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chat service.ChatService, gate *service.AuthGate, presence *service.PresenceRegistry, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:  chat,
		gate:     gate,
		presence: presence,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRealtime binds the websocket endpoint. Credentials are checked before the
// upgrade so a rejected client gets a plain 401 and never reaches the registry.
// Sessions outlive the upgrade request, so they start from a fresh context.
func (h *ChatHandler) RegisterRealtime(router fiber.Router) {
	router.Use("/ws", h.authenticateUpgrade)
	router.Get("/ws", websocket.New(h.handleConnection))
}

// RegisterPresence binds presence lookups under an authenticated group.
func (h *ChatHandler) RegisterPresence(router fiber.Router) {
	router.Get("/:user_id", h.presenceOf)
}

func (h *ChatHandler) authenticateUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}

	token, err := middleware.BearerToken(c)
	if err != nil {
		observability.RealtimeConnections().WithLabelValues("rejected").Inc()
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}

	user, err := h.gate.Resolve(requestContext(c), token)
	if err != nil {
		observability.RealtimeConnections().WithLabelValues("rejected").Inc()
		requestLogger(h.logger, c).Info().Err(err).Msg("realtime authentication rejected")
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication failed")
	}

	observability.RealtimeConnections().WithLabelValues("accepted").Inc()
	c.Locals(localRealtimeUser, user.ID)
	return c.Next()
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals(localRealtimeUser).(uint)
	correlation := fmt.Sprint(conn.Locals("correlation_id"))
	if correlation == "<nil>" {
		correlation = ""
	}

	session := service.NewSession()
	logger := h.logger.With().Str("session_id", session.ID).Uint("user_id", userID).Logger()

	logger.Info().Msg("realtime session connected")
	h.service.ServeConnection(conn, service.ChatConnectionOptions{
		Session:       session,
		UserID:        userID,
		CorrelationID: correlation,
		Context:       context.Background(),
	})
	logger.Info().Msg("realtime session disconnected")
}

func (h *ChatHandler) presenceOf(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	sessions := h.presence.SessionsOf(userID)
	return utils.SendSuccess(c, "presence retrieved", dto.PresenceResponse{
		UserID:   userID,
		Online:   len(sessions) > 0,
		Sessions: len(sessions),
	})
}
