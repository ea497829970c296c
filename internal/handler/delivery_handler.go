package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classdesk-api/internal/service"
	"github.com/noah-isme/classdesk-api/internal/utils"
)

// DeliveryHandler exposes the internal endpoint the scheduler calls to run
// the delivery batch.
type DeliveryHandler struct {
	service service.DeliveryService
	logger  zerolog.Logger
}

// NewDeliveryHandler builds a delivery handler instance.
func NewDeliveryHandler(svc service.DeliveryService, logger zerolog.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		service: svc,
		logger:  logger.With().Str("component", "delivery_handler").Logger(),
	}
}

// Register attaches the delivery routes. The group is expected to be guarded
// by the cron secret middleware.
func (h *DeliveryHandler) Register(router fiber.Router) {
	router.Post("/run", h.run)
}

func (h *DeliveryHandler) run(c *fiber.Ctx) error {
	result, err := h.service.ProcessPendingDeliveries(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("delivery batch failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "delivery batch failed")
	}

	message := "delivery batch completed"
	if result.Skipped {
		message = "delivery batch skipped, another run is in progress"
	}

	return utils.SendSuccess(c, message, result)
}
