package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/service"
	"github.com/noah-isme/gema-social-api/internal/utils"
)

// ConversationHandler exposes conversation and message history endpoints.
type ConversationHandler struct {
	service   service.ConversationService
	chat      service.ChatService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(conversations service.ConversationService, chat service.ChatService, validate *validator.Validate, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service:   conversations,
		chat:      chat,
		validator: validate,
		logger:    logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register binds the conversation routes.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Post("/direct/:user_id", h.direct)
	router.Get("/search", h.search)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/participants", h.addParticipant)
	router.Delete("/:id/participants/:user_id", h.removeParticipant)
	router.Get("/:id/messages", h.messages)
	router.Get("/:id/unread", h.unread)
}

type pageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	var query dto.MessageListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversations, err := h.service.ListConversations(requestContext(c), userIDFromContext(c), query.Limit, query.Offset)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, conversations, "conversations retrieved", pageMeta{Limit: query.Limit, Offset: query.Offset, Count: len(conversations)})
}

func (h *ConversationHandler) create(c *fiber.Ctx) error {
	var req dto.ConversationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	conversation, created, err := h.service.CreateConversation(ctx, userIDFromContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return h.respondConversation(c, conversation, created)
}

func (h *ConversationHandler) direct(c *fiber.Ctx) error {
	otherID, err := parseIDParam(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, created, err := h.service.GetOrCreateDirect(requestContext(c), userIDFromContext(c), otherID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return h.respondConversation(c, conversation, created)
}

func (h *ConversationHandler) respondConversation(c *fiber.Ctx, conversation dto.ConversationResponse, created bool) error {
	if !created {
		return utils.SendSuccess(c, "conversation retrieved", conversation)
	}

	h.chat.AnnounceConversation(requestContext(c), conversation)
	requestLogger(h.logger, c).Info().
		Uint("conversation_id", conversation.ID).
		Bool("is_group", conversation.IsGroup).
		Msg("conversation created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation created", conversation)
}

func (h *ConversationHandler) search(c *fiber.Ctx) error {
	var query dto.ConversationSearchQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversations, err := h.service.SearchConversations(requestContext(c), userIDFromContext(c), query.Query, query.Limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "conversations retrieved", conversations)
}

func (h *ConversationHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.GetConversation(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "conversation retrieved", conversation)
}

func (h *ConversationHandler) update(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ConversationUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.UpdateConversation(requestContext(c), id, userIDFromContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "conversation updated", conversation)
}

func (h *ConversationHandler) delete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteConversation(requestContext(c), id, userIDFromContext(c)); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "conversation deleted", nil)
}

func (h *ConversationHandler) addParticipant(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ParticipantAddRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	conversation, err := h.service.AddParticipant(requestContext(c), id, userIDFromContext(c), req.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "participant added", conversation)
}

func (h *ConversationHandler) removeParticipant(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, err := parseIDParam(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.RemoveParticipant(requestContext(c), id, userIDFromContext(c), userID); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "participant removed", nil)
}

// messages returns a page of history and marks the conversation read for the caller.
func (h *ConversationHandler) messages(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var query dto.MessageListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	userID := userIDFromContext(c)
	messages, err := h.service.ListMessages(ctx, id, userID, query.Limit, query.Offset)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if _, err := h.service.MarkConversationRead(ctx, id, userID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("conversation_id", id).Msg("failed to mark conversation read")
	}

	return utils.OK(c, messages, "messages retrieved", pageMeta{Limit: query.Limit, Offset: query.Offset, Count: len(messages)})
}

func (h *ConversationHandler) unread(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	count, err := h.service.UnreadCount(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "unread count retrieved", dto.UnreadCountResponse{ConversationID: id, UnreadCount: count})
}
