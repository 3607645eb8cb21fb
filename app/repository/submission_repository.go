package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/gravity-bridge/app/models"
)

// submissionRepository implements the SubmissionRepository interface
type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a new submission repository instance
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	var s models.Submission
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *submissionRepository) GetBySubmissionID(ctx context.Context, submissionID string) (*models.Submission, error) {
	var s models.Submission
	if err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// CreateIfNotExists relies on the unique index over submission_id so that
// concurrent inserts of the same key are serialised by the database.
func (r *submissionRepository) CreateIfNotExists(ctx context.Context, submission *models.Submission) (bool, *models.Submission, error) {
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusPending
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoNothing: true,
	}).Create(submission)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetBySubmissionID(ctx, submission.SubmissionID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *submissionRepository) MarkAssociated(ctx context.Context, id, userID uint, at time.Time) (bool, error) {
	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
			Updates(map[string]interface{}{
				"user_id":       userID,
				"status":        models.SubmissionStatusAssociated,
				"associated_at": at,
				"updated_at":    at,
			})
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected > 0
		return nil
	})
	return updated, err
}

func (r *submissionRepository) BumpAttempt(ctx context.Context, id uint, lastError string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
			"last_error":      lastError,
			"updated_at":      at,
		}).Error
}

func (r *submissionRepository) MarkFailed(ctx context.Context, id uint, lastError string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusFailed,
			"last_error": lastError,
			"updated_at": at,
		}).Error
}

// ListPendingBatch returns never-attempted rows first, then the ones whose
// last attempt is oldest, then the oldest submissions.
func (r *submissionRepository) ListPendingBatch(ctx context.Context, limit int) ([]models.Submission, error) {
	var rows []models.Submission
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SubmissionStatusPending).
		Order("CASE WHEN last_attempt_at IS NULL THEN 0 ELSE 1 END ASC").
		Order("last_attempt_at ASC").
		Order("submitted_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *submissionRepository) ListPendingByEmail(ctx context.Context, emailNormalised string, limit int) ([]models.Submission, error) {
	var rows []models.Submission
	err := r.db.WithContext(ctx).
		Where("email_normalised = ? AND status = ?", emailNormalised, models.SubmissionStatusPending).
		Order("submitted_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *submissionRepository) ListByEmail(ctx context.Context, emailNormalised string, limit int) ([]models.Submission, error) {
	var rows []models.Submission
	err := r.db.WithContext(ctx).
		Where("email_normalised = ?", emailNormalised).
		Order("submitted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *submissionRepository) Counts(ctx context.Context) (*SubmissionCounts, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := &SubmissionCounts{}
	for _, row := range rows {
		counts.Total += row.Total
		switch row.Status {
		case models.SubmissionStatusPending:
			counts.Pending = row.Total
		case models.SubmissionStatusAssociated:
			counts.Associated = row.Total
		case models.SubmissionStatusFailed:
			counts.Failed = row.Total
		}
	}
	return counts, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
