package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/gravity-bridge/app/models"
)

// ErrNotFound is returned when a lookup has no matching row.
var ErrNotFound = errors.New("record not found")

// SubmissionRepository is the durable, idempotent store of submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetBySubmissionID(ctx context.Context, submissionID string) (*models.Submission, error)
	// CreateIfNotExists inserts the submission unless a row with the same
	// submission_id exists. It returns whether a new row was written and the
	// stored row either way.
	CreateIfNotExists(ctx context.Context, submission *models.Submission) (bool, *models.Submission, error)
	// MarkAssociated moves a pending row to associated. It returns false when
	// the row was no longer pending.
	MarkAssociated(ctx context.Context, id, userID uint, at time.Time) (bool, error)
	BumpAttempt(ctx context.Context, id uint, lastError string, at time.Time) error
	MarkFailed(ctx context.Context, id uint, lastError string, at time.Time) error
	ListPendingBatch(ctx context.Context, limit int) ([]models.Submission, error)
	ListPendingByEmail(ctx context.Context, emailNormalised string, limit int) ([]models.Submission, error)
	ListByEmail(ctx context.Context, emailNormalised string, limit int) ([]models.Submission, error)
	Counts(ctx context.Context) (*SubmissionCounts, error)
}

// UserRepository is the read side of the identity directory.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, emailNormalised string) (*models.User, error)
}

// ProfileRepository reads and writes key-value profile fields of a user.
type ProfileRepository interface {
	GetMeta(ctx context.Context, userID uint, key string) (*string, bool, error)
	SetMetas(ctx context.Context, userID uint, values map[string]*string) error
}

// SubmissionCounts summarises the submission table by status.
type SubmissionCounts struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Associated int64 `json:"associated"`
	Failed     int64 `json:"failed"`
}
