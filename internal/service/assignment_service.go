package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/repository"
)

// ErrAssignmentNotFound indicates the requested assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrNotAuthorized indicates the actor lacks the class-rep role required for
// the operation.
var ErrNotAuthorized = errors.New("actor is not authorized for this class")

// ErrAccessDenied indicates the actor is not a member of the class at all.
var ErrAccessDenied = errors.New("actor is not a member of this class")

// ErrInvalidDeadline indicates the deadline is not strictly in the future.
var ErrInvalidDeadline = errors.New("deadline must be in the future")

// ErrAssignmentClosed indicates a closed assignment's content cannot change.
var ErrAssignmentClosed = errors.New("assignment is already closed")

// AssignmentService exposes assignment lifecycle use cases.
type AssignmentService interface {
	Create(ctx context.Context, actorID, classID uint, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actorID, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Get(ctx context.Context, actorID, id uint) (dto.AssignmentResponse, error)
	ListForClass(ctx context.Context, actorID, classID uint) ([]dto.AssignmentResponse, error)
	Delete(ctx context.Context, actorID, id uint) error
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

type assignmentService struct {
	repo       repository.AssignmentRepository
	membership repository.MembershipRepository
	validator  *validator.Validate
	storage    BlobStorage
	activity   ActivityRecorder
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(
	repo repository.AssignmentRepository,
	membership repository.MembershipRepository,
	validate *validator.Validate,
	storage BlobStorage,
	activity ActivityRecorder,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		repo:       repo,
		membership: membership,
		validator:  validate,
		storage:    storage,
		activity:   activity,
		logger:     logger.With().Str("component", "assignment_service").Logger(),
		now:        time.Now,
	}
}

func (s *assignmentService) Create(ctx context.Context, actorID, classID uint, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.requireRole(ctx, actorID, classID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return dto.AssignmentResponse{}, err
	}

	deadline, err := time.Parse(time.RFC3339, payload.Deadline)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid deadline: %w", err)
	}
	if !deadline.After(s.now()) {
		return dto.AssignmentResponse{}, ErrInvalidDeadline
	}

	assignment := models.Assignment{
		ClassID:          classID,
		CreatedBy:        actorID,
		Title:            payload.Title,
		Description:      payload.Description,
		Deadline:         deadline,
		Status:           models.AssignmentStatusOpen,
		SubmissionMethod: payload.SubmissionMethod,
		SubmissionLink:   payload.SubmissionLink,
		LecturerName:     payload.LecturerName,
		LecturerEmail:    payload.LecturerEmail,
		AutoSend:         payload.AutoSend,
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.SubmissionMethod == models.SubmissionMethodFile {
		// Folder creation is best effort; a failure here is retried
		// lazily on the first submission.
		s.preCreateFolder(ctx, &assignment)
	}

	s.record(ctx, actorID, classID, "assignment.created", assignment.ID, map[string]interface{}{
		"title":    assignment.Title,
		"deadline": assignment.Deadline,
	})

	s.logger.Info().Uint("assignment_id", assignment.ID).Uint("class_id", classID).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Update(ctx context.Context, actorID, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.requireRole(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.IsClosed() {
		return dto.AssignmentResponse{}, ErrAssignmentClosed
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}
	if payload.Description != nil {
		assignment.Description = *payload.Description
	}
	if payload.Deadline != nil {
		deadline, err := time.Parse(time.RFC3339, *payload.Deadline)
		if err != nil {
			return dto.AssignmentResponse{}, fmt.Errorf("invalid deadline: %w", err)
		}
		if !deadline.After(s.now()) {
			return dto.AssignmentResponse{}, ErrInvalidDeadline
		}
		assignment.Deadline = deadline
	}
	if payload.SubmissionMethod != nil {
		assignment.SubmissionMethod = *payload.SubmissionMethod
	}
	if payload.SubmissionLink != nil {
		assignment.SubmissionLink = *payload.SubmissionLink
	}
	if payload.LecturerName != nil {
		assignment.LecturerName = *payload.LecturerName
	}
	if payload.LecturerEmail != nil {
		assignment.LecturerEmail = *payload.LecturerEmail
	}
	if payload.AutoSend != nil {
		assignment.AutoSend = *payload.AutoSend
	}

	if err := s.repo.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.record(ctx, actorID, assignment.ClassID, "assignment.updated", assignment.ID, nil)

	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Get(ctx context.Context, actorID, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.requireRole(ctx, actorID, assignment.ClassID, "", ErrAccessDenied); err != nil {
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) ListForClass(ctx context.Context, actorID, classID uint) ([]dto.AssignmentResponse, error) {
	if err := s.requireRole(ctx, actorID, classID, "", ErrAccessDenied); err != nil {
		return nil, err
	}

	assignments, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignmentResponseSlice(assignments), nil
}

func (s *assignmentService) Delete(ctx context.Context, actorID, id uint) error {
	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return err
	}

	if err := s.requireRole(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.record(ctx, actorID, assignment.ClassID, "assignment.deleted", id, nil)

	s.logger.Info().Uint("assignment_id", id).Msg("assignment soft-deleted")
	return nil
}

func (s *assignmentService) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	closed, err := s.repo.CloseExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if closed > 0 {
		s.logger.Info().Int64("count", closed).Msg("expired assignments closed")
	}

	return closed, nil
}

func (s *assignmentService) getAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) requireRole(ctx context.Context, actorID, classID uint, role string, denied error) error {
	ok, err := s.membership.IsMember(ctx, actorID, classID, role)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}

func (s *assignmentService) preCreateFolder(ctx context.Context, assignment *models.Assignment) {
	folderID, err := s.storage.EnsureFolder(ctx, fmt.Sprintf("assignment-%d", assignment.ID), assignmentFolderParent)
	if err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to pre-create storage folder")
		return
	}

	if err := s.repo.SetStorageFolder(ctx, assignment.ID, folderID); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to persist storage folder id")
		return
	}

	assignment.StorageFolderID = folderID
}

func (s *assignmentService) record(ctx context.Context, actorID, classID uint, action string, entityID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	id := entityID
	_, _ = s.activity.Record(ctx, ActivityEntry{
		ClassID:    classID,
		ActorID:    actorID,
		ActorRole:  models.RoleClassRep,
		Action:     action,
		EntityType: "assignment",
		EntityID:   &id,
		Metadata:   metadata,
	})
}
