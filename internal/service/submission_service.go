package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/models"
	"github.com/noah-isme/classdesk-api/internal/repository"
)

// ErrSubmissionNotFound indicates a submission could not be found.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrDeadlinePassed indicates the assignment no longer accepts submissions.
var ErrDeadlinePassed = errors.New("assignment deadline has passed")

// ErrAlreadySubmitted indicates the student already has an active submission
// and must request resubmission before replacing it.
var ErrAlreadySubmitted = errors.New("assignment already submitted; request resubmission to replace it")

// ErrPendingResubmission indicates a resubmission request is still awaiting a
// decision, so the existing submission cannot be overwritten yet.
var ErrPendingResubmission = errors.New("a resubmission request is pending review")

// ErrAlreadyRequested indicates an open resubmission request already exists.
var ErrAlreadyRequested = errors.New("resubmission already requested")

// ErrNoResubmissionRequest indicates an approval was attempted without an
// open request.
var ErrNoResubmissionRequest = errors.New("no resubmission request to approve")

// ErrResubmissionConflict indicates the resubmission state changed under a
// concurrent decision; the caller should re-read and retry.
var ErrResubmissionConflict = errors.New("resubmission state changed concurrently")

// ErrFileRequired indicates a file-method submission arrived without a file.
var ErrFileRequired = errors.New("submission file is required")

// ErrLinkRequired indicates a link-method submission arrived without a URL.
var ErrLinkRequired = errors.New("submission link is required")

// SubmissionService orchestrates the submission and resubmission state
// machine plus bulk archival.
type SubmissionService interface {
	Submit(ctx context.Context, studentID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	GetStudentSubmission(ctx context.Context, studentID, assignmentID uint) (*dto.SubmissionResponse, error)
	RequestResubmission(ctx context.Context, studentID, assignmentID uint, reason string) (dto.SubmissionResponse, error)
	ApproveResubmission(ctx context.Context, actorID, submissionID uint) (dto.SubmissionResponse, error)
	RejectResubmission(ctx context.Context, actorID, submissionID uint, reason string) (dto.SubmissionResponse, error)
	ListForAssignment(ctx context.Context, actorID, assignmentID uint) ([]dto.SubmissionResponse, error)
	ListPendingResubmissions(ctx context.Context, actorID, assignmentID uint) ([]dto.SubmissionResponse, error)
	ArchiveForAssignment(ctx context.Context, actorID, assignmentID uint) ([]byte, string, error)
	BuildArchive(ctx context.Context, assignmentID uint, namesByStudent map[uint]string) ([]byte, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	membership  repository.MembershipRepository
	users       repository.UserRepository
	validator   *validator.Validate
	storage     BlobStorage
	events      EventPublisher
	activity    ActivityRecorder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	assignmentRepo repository.AssignmentRepository,
	membership repository.MembershipRepository,
	users repository.UserRepository,
	validate *validator.Validate,
	storage BlobStorage,
	events EventPublisher,
	activity ActivityRecorder,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		membership:  membership,
		users:       users,
		validator:   validate,
		storage:     storage,
		events:      events,
		activity:    activity,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit enforces the one-active-submission-per-student invariant. A new
// submission either creates the first row or, when the existing row's
// resubmission was approved, replaces it. The approval is consumed by the
// replacement: the new row starts with cleared resubmission flags.
func (s *submissionService) Submit(ctx context.Context, studentID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.getAssignment(ctx, payload.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.requireMembership(ctx, studentID, assignment.ClassID, "", ErrAccessDenied); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if assignment.IsClosed() || assignment.IsPastDeadline(s.now()) {
		return dto.SubmissionResponse{}, ErrDeadlinePassed
	}

	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, studentID)
	switch {
	case err == nil:
		if existing.ResubmissionPending() {
			return dto.SubmissionResponse{}, ErrPendingResubmission
		}
		if !existing.ResubmissionApproved {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return s.replaceSubmission(ctx, assignment, existing, studentID, payload, file)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.createSubmission(ctx, assignment, studentID, payload, file)
	default:
		return dto.SubmissionResponse{}, err
	}
}

func (s *submissionService) createSubmission(ctx context.Context, assignment models.Assignment, studentID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	submission, err := s.buildSubmission(ctx, assignment, studentID, payload, file)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a concurrent first-submit race; drop the blob we
			// just uploaded so it does not orphan.
			s.discardBlob(ctx, submission)
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return dto.SubmissionResponse{}, err
	}

	s.notifySubmission(ctx, "submission.created", assignment, submission)
	s.logger.Info().Uint("submission_id", submission.ID).Uint("assignment_id", assignment.ID).Msg("submission created")

	return dto.NewSubmissionResponse(submission), nil
}

// replaceSubmission consumes an approved resubmission: the old blob is
// deleted first, then the row is swapped. The row is never removed while its
// blob still exists, so a failure after the blob delete can only leave an
// orphaned row, which is logged for reconciliation.
func (s *submissionService) replaceSubmission(ctx context.Context, assignment models.Assignment, existing models.Submission, studentID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	if existing.HasStoredFile() {
		if err := s.storage.Delete(ctx, existing.StorageFileID); err != nil {
			return dto.SubmissionResponse{}, fmt.Errorf("failed to delete previous submission file: %w", err)
		}
	}

	submission, err := s.buildSubmission(ctx, assignment, studentID, payload, file)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.submissions.Replace(ctx, existing.ID, &submission); err != nil {
		s.logger.Error().Err(err).
			Uint("submission_id", existing.ID).
			Str("new_file_id", submission.StorageFileID).
			Msg("submission row swap failed after blob delete; row pending reconciliation")
		return dto.SubmissionResponse{}, err
	}

	s.notifySubmission(ctx, "submission.replaced", assignment, submission)
	s.logger.Info().Uint("submission_id", submission.ID).Uint("assignment_id", assignment.ID).Msg("submission replaced")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) GetStudentSubmission(ctx context.Context, studentID, assignmentID uint) (*dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	response := dto.NewSubmissionResponse(submission)
	return &response, nil
}

func (s *submissionService) RequestResubmission(ctx context.Context, studentID, assignmentID uint, reason string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.ResubmissionRequested {
		return dto.SubmissionResponse{}, ErrAlreadyRequested
	}

	if err := s.submissions.MarkResubmissionRequested(ctx, submission.ID, reason, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleSubmissionState):
			return dto.SubmissionResponse{}, ErrAlreadyRequested
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		default:
			return dto.SubmissionResponse{}, err
		}
	}

	return s.reload(ctx, submission.ID)
}

func (s *submissionService) ApproveResubmission(ctx context.Context, actorID, submissionID uint) (dto.SubmissionResponse, error) {
	submission, assignment, err := s.getSubmissionWithAssignment(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.requireMembership(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if !submission.ResubmissionRequested {
		return dto.SubmissionResponse{}, ErrNoResubmissionRequest
	}

	if err := s.submissions.ApproveResubmission(ctx, submissionID, actorID, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleSubmissionState):
			return dto.SubmissionResponse{}, ErrResubmissionConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		default:
			return dto.SubmissionResponse{}, err
		}
	}

	s.recordDecision(ctx, actorID, assignment, submissionID, "resubmission.approved", "")

	return s.reload(ctx, submissionID)
}

// RejectResubmission is an idempotent reset: rejecting a submission without
// an open request simply reasserts the rejected state.
func (s *submissionService) RejectResubmission(ctx context.Context, actorID, submissionID uint, reason string) (dto.SubmissionResponse, error) {
	_, assignment, err := s.getSubmissionWithAssignment(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.requireMembership(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.submissions.RejectResubmission(ctx, submissionID, reason); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	s.recordDecision(ctx, actorID, assignment, submissionID, "resubmission.rejected", reason)

	return s.reload(ctx, submissionID)
}

func (s *submissionService) ListForAssignment(ctx context.Context, actorID, assignmentID uint) ([]dto.SubmissionResponse, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if err := s.requireMembership(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListPendingResubmissions(ctx context.Context, actorID, assignmentID uint) ([]dto.SubmissionResponse, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if err := s.requireMembership(ctx, actorID, assignment.ClassID, models.RoleClassRep, ErrNotAuthorized); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListPendingResubmissions(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) buildSubmission(ctx context.Context, assignment models.Assignment, studentID uint, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (models.Submission, error) {
	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		SubmittedAt:  s.now(),
	}

	switch assignment.SubmissionMethod {
	case models.SubmissionMethodLink:
		if payload.LinkURL == "" {
			return models.Submission{}, ErrLinkRequired
		}
		submission.FileURL = payload.LinkURL
		return submission, nil
	default:
		if file == nil {
			return models.Submission{}, ErrFileRequired
		}
	}

	detected, err := validateFileType(file)
	if err != nil {
		return models.Submission{}, err
	}

	folderID, err := s.ensureAssignmentFolder(ctx, assignment)
	if err != nil {
		return models.Submission{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	stored, err := s.storage.Upload(ctx, reader, file.Filename, folderID)
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to upload file: %w", err)
	}

	submission.FileName = file.Filename
	submission.FileURL = stored.URL
	submission.FileSize = file.Size
	submission.MimeType = detected
	submission.StorageFileID = stored.ID
	submission.StorageFolderID = folderID

	return submission, nil
}

// ensureAssignmentFolder returns the assignment's storage folder, creating it
// now when the best-effort pre-creation at assignment time did not stick.
func (s *submissionService) ensureAssignmentFolder(ctx context.Context, assignment models.Assignment) (string, error) {
	if assignment.StorageFolderID != "" {
		return assignment.StorageFolderID, nil
	}

	folderID, err := s.storage.EnsureFolder(ctx, fmt.Sprintf("assignment-%d", assignment.ID), assignmentFolderParent)
	if err != nil {
		return "", fmt.Errorf("failed to create storage folder: %w", err)
	}

	if err := s.assignments.SetStorageFolder(ctx, assignment.ID, folderID); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to persist storage folder id")
	}

	return folderID, nil
}

func (s *submissionService) getAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) getSubmissionWithAssignment(ctx context.Context, submissionID uint) (models.Submission, models.Assignment, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, models.Assignment{}, ErrSubmissionNotFound
		}
		return models.Submission{}, models.Assignment{}, err
	}

	assignment, err := s.getAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return models.Submission{}, models.Assignment{}, err
	}

	return submission, assignment, nil
}

func (s *submissionService) requireMembership(ctx context.Context, actorID, classID uint, role string, denied error) error {
	ok, err := s.membership.IsMember(ctx, actorID, classID, role)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}

func (s *submissionService) reload(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) discardBlob(ctx context.Context, submission models.Submission) {
	if !submission.HasStoredFile() {
		return
	}
	if err := s.storage.Delete(ctx, submission.StorageFileID); err != nil {
		s.logger.Warn().Err(err).Str("file_id", submission.StorageFileID).Msg("failed to discard orphaned blob")
	}
}

func (s *submissionService) notifySubmission(ctx context.Context, subject string, assignment models.Assignment, submission models.Submission) {
	if s.events != nil {
		s.events.Publish(ctx, subject, map[string]interface{}{
			"submission_id": submission.ID,
			"assignment_id": assignment.ID,
			"student_id":    submission.StudentID,
			"class_id":      assignment.ClassID,
		})
	}

	if s.activity != nil {
		id := submission.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ClassID:    assignment.ClassID,
			ActorID:    submission.StudentID,
			ActorRole:  models.RoleStudent,
			Action:     subject,
			EntityType: "submission",
			EntityID:   &id,
			Metadata: map[string]interface{}{
				"assignment_id": assignment.ID,
				"file_name":     submission.FileName,
			},
		})
	}
}

func (s *submissionService) recordDecision(ctx context.Context, actorID uint, assignment models.Assignment, submissionID uint, action, reason string) {
	if s.activity == nil {
		return
	}
	id := submissionID
	metadata := map[string]interface{}{"assignment_id": assignment.ID}
	if reason != "" {
		metadata["reason"] = reason
	}
	_, _ = s.activity.Record(ctx, ActivityEntry{
		ClassID:    assignment.ClassID,
		ActorID:    actorID,
		ActorRole:  models.RoleClassRep,
		Action:     action,
		EntityType: "submission",
		EntityID:   &id,
		Metadata:   metadata,
	})
}

func validateFileType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{
		"application/pdf",
		"application/zip",
		"application/x-zip-compressed",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
		"image/png",
		"image/jpeg",
	}
	for _, a := range allowed {
		if mime.Is(a) {
			return mime.String(), nil
		}
	}

	return "", fmt.Errorf("unsupported file type: %s", mime.String())
}
