package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// ErrStaleSubmissionState indicates a guarded resubmission update matched the
// row but not its expected flag state; the caller lost a concurrent race.
var ErrStaleSubmissionState = errors.New("submission state changed concurrently")

// SubmissionRepository defines data operations for submissions. The
// resubmission mutators are conditional updates: they only apply when the
// stored flags match the expected transition source state.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	ListPendingResubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	Replace(ctx context.Context, oldID uint, submission *models.Submission) error
	MarkResubmissionRequested(ctx context.Context, id uint, reason string, at time.Time) error
	ApproveResubmission(ctx context.Context, id uint, approverID uint, at time.Time) error
	RejectResubmission(ctx context.Context, id uint, reason string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListPendingResubmissions(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("resubmission_requested = ?", true).
		Where("resubmission_approved = ?", false).
		Order("resubmission_requested_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

// Replace atomically swaps a student's submission row: the old row is removed
// and the new one inserted in a single transaction, so the unique
// (assignment, student) index never blocks the insert halfway through.
func (r *submissionRepository) Replace(ctx context.Context, oldID uint, submission *models.Submission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Submission{}, oldID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(submission).Error
	})
}

// MarkResubmissionRequested transitions none/rejected -> requested. The guard
// rejects rows that already carry an open request.
func (r *submissionRepository) MarkResubmissionRequested(ctx context.Context, id uint, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where("resubmission_requested = ?", false).
		Updates(map[string]interface{}{
			"resubmission_requested":    true,
			"resubmission_requested_at": at,
			"resubmission_reason":       reason,
			"resubmission_rejected":     false,
			"rejection_reason":          "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.resolveGuardFailure(ctx, id)
	}
	return nil
}

// ApproveResubmission transitions requested -> approved.
func (r *submissionRepository) ApproveResubmission(ctx context.Context, id uint, approverID uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where("resubmission_requested = ?", true).
		Where("resubmission_approved = ?", false).
		Updates(map[string]interface{}{
			"resubmission_approved":    true,
			"resubmission_approved_by": approverID,
			"resubmission_approved_at": at,
			"resubmission_rejected":    false,
			"rejection_reason":         "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.resolveGuardFailure(ctx, id)
	}
	return nil
}

// RejectResubmission unconditionally resets the row to the rejected state.
// Rejecting a submission with no open request is an idempotent reset.
func (r *submissionRepository) RejectResubmission(ctx context.Context, id uint, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resubmission_requested": false,
			"resubmission_approved":  false,
			"resubmission_rejected":  true,
			"rejection_reason":       reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// resolveGuardFailure distinguishes a missing row from a lost race.
func (r *submissionRepository) resolveGuardFailure(ctx context.Context, id uint) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStaleSubmissionState
}
