package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/gravity-bridge/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by a normalised email address. Stored addresses
// may carry mixed case, so the comparison is done on the lowered column.
func (r *userRepository) GetByEmail(ctx context.Context, emailNormalised string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(TRIM(email)) = ?", emailNormalised).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
