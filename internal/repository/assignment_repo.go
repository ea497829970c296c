package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	ListByClass(ctx context.Context, classID uint) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	ListPendingDelivery(ctx context.Context, now time.Time) ([]models.Assignment, error)
	MarkDelivered(ctx context.Context, id uint, at time.Time) error
	SetStorageFolder(ctx context.Context, id uint, folderID string) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) ListByClass(ctx context.Context, classID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("deadline ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

// Delete soft-deletes the assignment; the row is retained with deleted_at set.
func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Assignment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CloseExpired bulk-transitions open assignments past their deadline to
// closed and reports how many rows changed. Re-running is a no-op for rows
// already closed.
func (r *assignmentRepository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("status = ?", models.AssignmentStatusOpen).
		Where("deadline <= ?", now).
		Updates(map[string]interface{}{
			"status":     models.AssignmentStatusClosed,
			"updated_at": now,
		})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (r *assignmentRepository) ListPendingDelivery(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	var assignments []models.Assignment
	if err := r.db.WithContext(ctx).
		Where("auto_send = ?", true).
		Where("delivered = ?", false).
		Where("deadline < ?", now).
		Order("deadline ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) MarkDelivered(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered":    true,
			"delivered_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assignmentRepository) SetStorageFolder(ctx context.Context, id uint, folderID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", id).
		Update("storage_folder_id", folderID).Error
}
