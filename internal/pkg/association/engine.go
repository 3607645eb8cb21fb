package association

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/profile"
)

const (
	errNoMatchingUser = "No matching user for email"
	errLookupFailed   = "user lookup failed"
	errStorageUpdate  = "storage update failed"
)

var (
	ErrInvalidRow   = errors.New("invalid row")
	ErrLookupFailed = errors.New("user lookup failed")
	ErrUpdateFailed = errors.New("storage update failed")
)

// Directory resolves a normalised email to a user identity.
type Directory interface {
	GetByEmail(ctx context.Context, emailNormalised string) (*models.User, error)
}

// Result is the outcome of one association attempt.
type Result struct {
	Associated bool
	UserID     *uint
	Status     string
}

// Engine links pending submissions to users and keeps the latest-wins profile
// snapshot. It is the only writer of association status.
type Engine struct {
	submissions repository.SubmissionRepository
	directory   Directory
	profiles    profile.Store
	Now         func() time.Time
}

func NewEngine(submissions repository.SubmissionRepository, directory Directory, profiles profile.Store) *Engine {
	return &Engine{
		submissions: submissions,
		directory:   directory,
		profiles:    profiles,
		Now:         time.Now,
	}
}

// Attempt tries to associate one submission. A missing user is not an error:
// the attempt is recorded and the row stays pending.
func (e *Engine) Attempt(ctx context.Context, row *models.Submission) (Result, error) {
	if row == nil || row.ID == 0 || row.EmailNormalised == "" {
		log.Warnf("[Association] Skipping invalid row %+v", row)
		return Result{}, ErrInvalidRow
	}
	if !row.IsPending() {
		return Result{Associated: row.Status == models.SubmissionStatusAssociated, UserID: row.UserID, Status: row.Status}, nil
	}

	now := e.now()
	user, err := e.directory.GetByEmail(ctx, row.EmailNormalised)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if bumpErr := e.submissions.BumpAttempt(ctx, row.ID, errNoMatchingUser, now); bumpErr != nil {
				log.Errorf("[Association] Failed to record attempt for submission %d: %v", row.ID, bumpErr)
				return Result{Status: row.Status}, fmt.Errorf("%w: %v", ErrUpdateFailed, bumpErr)
			}
			return Result{Status: models.SubmissionStatusPending}, nil
		}
		log.Errorf("[Association] User lookup failed for submission %d: %v", row.ID, err)
		if bumpErr := e.submissions.BumpAttempt(ctx, row.ID, errLookupFailed, now); bumpErr != nil {
			log.Errorf("[Association] Failed to record attempt for submission %d: %v", row.ID, bumpErr)
		}
		return Result{Status: models.SubmissionStatusPending}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	updated, err := e.submissions.MarkAssociated(ctx, row.ID, user.ID, now)
	if err != nil {
		log.Errorf("[Association] Failed to mark submission %d associated: %v", row.ID, err)
		if bumpErr := e.submissions.BumpAttempt(ctx, row.ID, errStorageUpdate, now); bumpErr != nil {
			log.Errorf("[Association] Failed to record attempt for submission %d: %v", row.ID, bumpErr)
		}
		return Result{Status: models.SubmissionStatusPending}, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	if !updated {
		// Another attempt moved the row first; report whatever it settled on.
		current, getErr := e.submissions.GetByID(ctx, row.ID)
		if getErr != nil {
			return Result{Status: row.Status}, fmt.Errorf("%w: %v", ErrUpdateFailed, getErr)
		}
		return Result{
			Associated: current.Status == models.SubmissionStatusAssociated,
			UserID:     current.UserID,
			Status:     current.Status,
		}, nil
	}

	userID := user.ID
	log.Infof("[Association] Submission %s associated with user %d", row.SubmissionID, userID)

	if _, err := e.MergeSnapshot(ctx, userID, PayloadFromSubmission(row)); err != nil {
		// The association stands; the snapshot is denormalised best-effort state.
		log.Errorf("[Association] Snapshot merge failed for user %d (submission %s): %v", userID, row.SubmissionID, err)
	}

	return Result{Associated: true, UserID: &userID, Status: models.SubmissionStatusAssociated}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}
