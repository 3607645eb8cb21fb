package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/gravity-bridge/app/models"
)

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a user-meta backed profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetMeta(ctx context.Context, userID uint, key string) (*string, bool, error) {
	var meta models.UserMeta
	err := r.db.WithContext(ctx).Where("user_id = ? AND meta_key = ?", userID, key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return meta.MetaValue, true, nil
}

// SetMetas upserts every value in a single transaction.
func (r *profileRepository) SetMetas(ctx context.Context, userID uint, values map[string]*string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			meta := &models.UserMeta{UserID: userID, MetaKey: key, MetaValue: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "meta_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
			}).Create(meta).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
