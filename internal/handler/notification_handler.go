package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/middleware"
	"github.com/noah-isme/gema-social-api/internal/service"
	"github.com/noah-isme/gema-social-api/internal/utils"
)

// NotificationHandler serves the notification inbox and the fact ingestion endpoint.
type NotificationHandler struct {
	service        service.NotificationService
	validator      *validator.Validate
	logger         zerolog.Logger
	factsPerMinute int
}

// NewNotificationHandler constructs a handler instance. factsPerMinute bounds each
// service caller on the ingestion endpoint.
func NewNotificationHandler(notifications service.NotificationService, validate *validator.Validate, logger zerolog.Logger, factsPerMinute int) *NotificationHandler {
	return &NotificationHandler{
		service:        notifications,
		validator:      validate,
		logger:         logger.With().Str("component", "notification_handler").Logger(),
		factsPerMinute: factsPerMinute,
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	userOnly := middleware.AuthOptions{RequireUser: true}

	router.Get("/", middleware.WithAuth(h.list, userOnly))
	router.Get("/unread-count", middleware.WithAuth(h.unreadCount, userOnly))
	router.Patch("/read-all", middleware.WithAuth(h.markAllRead, userOnly))
	router.Patch("/:id/read", middleware.WithAuth(h.markRead, userOnly))
	router.Delete("/:id", middleware.WithAuth(h.delete, userOnly))

	router.Post("/facts",
		middleware.RequireRole(service.RoleService),
		middleware.RateLimit("facts", h.factsPerMinute, time.Minute),
		middleware.WithAuth(h.publishFact, middleware.AuthOptions{Role: middleware.AuthRoleService}),
	)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	var query dto.NotificationListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	notifications, err := h.service.List(requestContext(c), userIDFromContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, notifications, "notifications retrieved", pageMeta{Limit: query.Limit, Offset: query.Offset, Count: len(notifications)})
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	count, err := h.service.UnreadCount(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "unread count retrieved", dto.UnreadCountResponse{UnreadCount: count})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	notification, err := h.service.MarkRead(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	updated, err := h.service.MarkAllRead(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notifications updated", fiber.Map{"updated": updated})
}

func (h *NotificationHandler) delete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), id, userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification deleted", nil)
}

// publishFact records a social fact from another backend service.
func (h *NotificationHandler) publishFact(c *fiber.Ctx) error {
	var fact dto.SocialFact
	if err := c.BodyParser(&fact); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Dispatch(requestContext(c), fact)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if result.Skipped {
		return utils.SendSuccess(c, "fact ignored", result)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notification recorded", result)
}
