package handler

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/service"
	"github.com/noah-isme/classdesk-api/internal/utils"
)

// SubmissionHandler manages submission and resubmission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(svc service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: svc,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// RegisterAssignmentRoutes attaches the assignment-scoped submission routes.
func (h *SubmissionHandler) RegisterAssignmentRoutes(router fiber.Router) {
	router.Post("/:id/submissions", h.submit)
	router.Get("/:id/submissions", h.list)
	router.Get("/:id/submissions/me", h.mine)
	router.Get("/:id/submissions/archive", h.archive)
	router.Get("/:id/resubmissions/pending", h.pendingResubmissions)
	router.Post("/:id/resubmissions", h.requestResubmission)
}

// Register attaches the submission-scoped resubmission decision routes.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/:id/resubmission/approve", h.approve)
	router.Post("/:id/resubmission/reject", h.reject)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.SubmissionCreateRequest{
		AssignmentID: assignmentID,
		LinkURL:      c.FormValue("link_url"),
	}

	// Absent for link-method assignments; the service decides whether a
	// file is mandatory.
	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	submission, err := h.service.Submit(c.UserContext(), userIDFromContext(c), payload, file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submissions, err := h.service.ListForAssignment(c.UserContext(), userIDFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) mine(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.GetStudentSubmission(c.UserContext(), userIDFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}
	if submission == nil {
		return utils.SendError(c, fiber.StatusNotFound, "no submission yet")
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) archive(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	archive, filename, err := h.service.ArchiveForAssignment(c.UserContext(), userIDFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(archive)
}

func (h *SubmissionHandler) pendingResubmissions(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	pending, err := h.service.ListPendingResubmissions(c.UserContext(), userIDFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "pending resubmission requests retrieved", pending)
}

func (h *SubmissionHandler) requestResubmission(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ResubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.RequestResubmission(c.UserContext(), userIDFromContext(c), assignmentID, payload.Reason)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resubmission requested", submission)
}

func (h *SubmissionHandler) approve(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.ApproveResubmission(c.UserContext(), userIDFromContext(c), submissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resubmission approved", submission)
}

func (h *SubmissionHandler) reject(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ResubmissionRejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	submission, err := h.service.RejectResubmission(c.UserContext(), userIDFromContext(c), submissionID, payload.Reason)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resubmission rejected", submission)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrAccessDenied):
		return utils.SendError(c, fiber.StatusForbidden, "not a member of this class")
	case errors.Is(err, service.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "class rep role required")
	case errors.Is(err, service.ErrDeadlinePassed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "assignment deadline has passed")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendErrorWithHint(c, fiber.StatusConflict,
			"assignment already submitted",
			"request a resubmission to replace your file")
	case errors.Is(err, service.ErrPendingResubmission):
		return utils.SendError(c, fiber.StatusConflict, "a resubmission request is pending review")
	case errors.Is(err, service.ErrAlreadyRequested):
		return utils.SendError(c, fiber.StatusConflict, "resubmission already requested")
	case errors.Is(err, service.ErrNoResubmissionRequest):
		return utils.SendError(c, fiber.StatusConflict, "no resubmission request to approve")
	case errors.Is(err, service.ErrResubmissionConflict):
		return utils.SendError(c, fiber.StatusConflict, "resubmission state changed, reload and retry")
	case errors.Is(err, service.ErrFileRequired):
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	case errors.Is(err, service.ErrLinkRequired):
		return utils.SendError(c, fiber.StatusBadRequest, "link_url is required")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
