package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// MembershipRepository answers class-membership questions. It backs the
// authorization checks in the assignment and submission services.
type MembershipRepository interface {
	// IsMember reports whether the user belongs to the class. When
	// requiredRole is non-empty the membership must carry that role;
	// admins pass any role check.
	IsMember(ctx context.Context, userID, classID uint, requiredRole string) (bool, error)
	// FindClassRep returns the class representative for the class, or
	// gorm.ErrRecordNotFound when the class has none.
	FindClassRep(ctx context.Context, classID uint) (models.User, error)
}

type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository instantiates the repository.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) IsMember(ctx context.Context, userID, classID uint, requiredRole string) (bool, error) {
	var member models.ClassMember
	err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Where("user_id = ?", userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if requiredRole == "" {
		return true, nil
	}

	return member.Role == requiredRole || member.Role == models.RoleAdmin, nil
}

func (r *membershipRepository) FindClassRep(ctx context.Context, classID uint) (models.User, error) {
	var member models.ClassMember
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("class_id = ?", classID).
		Where("role = ?", models.RoleClassRep).
		First(&member).Error; err != nil {
		return models.User{}, err
	}

	return member.User, nil
}
