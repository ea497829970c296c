package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classdesk-api/internal/repository"
	"github.com/noah-isme/classdesk-api/internal/service"
	"github.com/noah-isme/classdesk-api/internal/utils"
)

// ActivityHandler exposes the audit trail to administrators.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler builds an activity handler instance.
func NewActivityHandler(svc service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: svc,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the audit trail routes.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	filter := repository.ActivityLogFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
		Page:       c.QueryInt("page", 1),
		PageSize:   c.QueryInt("page_size", 50),
	}
	if classID := c.QueryInt("class_id"); classID > 0 {
		id := uint(classID)
		filter.ClassID = &id
	}
	if actorID := c.QueryInt("actor_id"); actorID > 0 {
		id := uint(actorID)
		filter.ActorID = &id
	}

	entries, total, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activity log")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "activity log retrieved", fiber.Map{
		"entries": entries,
		"total":   total,
	})
}
