package repository

import (
	"context"

	"gorm.io/gorm"

	"marketplace/internal/model"
)

// UserRepository user repository interface
type UserRepository interface {
	// Create user
	Create(ctx context.Context, user *model.User) error

	// Get user by ID
	GetByID(ctx context.Context, id uint64) (*model.User, error)

	// Get users by IDs, missing ids are skipped
	GetByIDs(ctx context.Context, ids []uint64) ([]*model.User, error)

	// List active users holding a role
	ListByRole(ctx context.Context, role model.Role) ([]*model.User, error)
}

// userRepository user repository implementation
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a user
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// GetByID gets a user by ID
func (r *userRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetByIDs gets users by IDs
func (r *userRepository) GetByIDs(ctx context.Context, ids []uint64) ([]*model.User, error) {
	var users []*model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// ListByRole lists active users with the given role
func (r *userRepository) ListByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND status = ?", role, model.UserStatusActive).
		Order("id ASC").
		Find(&users).Error
	return users, err
}
