package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/classdesk-api/internal/models"
)

// UserRepository exposes user lookups needed by the core services.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
	NamesByID(ctx context.Context, ids []uint) (map[uint]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository instantiates the repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) NamesByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, err
	}

	for _, user := range users {
		names[user.ID] = user.Name
	}

	return names, nil
}
