package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/service"
	"github.com/noah-isme/classdesk-api/internal/utils"
)

// AssignmentHandler manages assignment lifecycle endpoints.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler builds an assignment handler instance.
func NewAssignmentHandler(svc service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: svc,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// RegisterClassRoutes attaches the class-scoped assignment routes.
func (h *AssignmentHandler) RegisterClassRoutes(router fiber.Router) {
	router.Post("/:classId/assignments", h.create)
	router.Get("/:classId/assignments", h.list)
}

// Register attaches the assignment-scoped routes.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Create(c.UserContext(), userIDFromContext(c), classID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	classID, err := parseUintParam(c, "classId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignments, err := h.service.ListForClass(c.UserContext(), userIDFromContext(c), classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(c.UserContext(), userIDFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Update(c.UserContext(), userIDFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment updated", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.UserContext(), userIDFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment deleted", nil)
}

func (h *AssignmentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "class rep role required")
	case errors.Is(err, service.ErrAccessDenied):
		return utils.SendError(c, fiber.StatusForbidden, "not a member of this class")
	case errors.Is(err, service.ErrInvalidDeadline):
		return utils.SendError(c, fiber.StatusBadRequest, "deadline must be in the future")
	case errors.Is(err, service.ErrAssignmentClosed):
		return utils.SendError(c, fiber.StatusConflict, "assignment is already closed")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
