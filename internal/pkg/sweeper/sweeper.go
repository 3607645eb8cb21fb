package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/association"
)

const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 20
	DefaultInterval    = 15 * time.Minute

	errMaxAttempts = "Max attempts exceeded"
)

// Attempter performs one association attempt for a submission.
type Attempter interface {
	Attempt(ctx context.Context, row *models.Submission) (association.Result, error)
}

// UserCreatedHook is notified when the identity directory gains a user.
type UserCreatedHook interface {
	OnUserCreated(ctx context.Context, userID uint) error
}

// Summary counts what one reconciliation pass did.
type Summary struct {
	Scanned    int `json:"scanned"`
	Associated int `json:"associated"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Errors     int `json:"errors"`
}

// Sweeper re-attempts association for pending submissions with a bounded
// number of attempts per row.
type Sweeper struct {
	submissions repository.SubmissionRepository
	users       repository.UserRepository
	engine      Attempter
	BatchSize   int
	MaxAttempts int
	Now         func() time.Time
}

func New(submissions repository.SubmissionRepository, users repository.UserRepository, engine Attempter) *Sweeper {
	return &Sweeper{
		submissions: submissions,
		users:       users,
		engine:      engine,
		BatchSize:   DefaultBatchSize,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
	}
}

// RunOnce processes one batch of pending rows. Rows are independent: a failure
// on one is counted and the pass moves on.
func (s *Sweeper) RunOnce(ctx context.Context) (Summary, error) {
	rows, err := s.submissions.ListPendingBatch(ctx, s.batchSize())
	if err != nil {
		return Summary{}, fmt.Errorf("list pending batch: %w", err)
	}

	var sum Summary
	for i := range rows {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		row := &rows[i]
		sum.Scanned++

		if row.Attempts >= s.maxAttempts() {
			if err := s.submissions.MarkFailed(ctx, row.ID, errMaxAttempts, s.now()); err != nil {
				log.Errorf("[Sweeper] Failed to mark submission %d failed: %v", row.ID, err)
				sum.Errors++
				continue
			}
			log.Warnf("[Sweeper] Submission %s gave up after %d attempts", row.SubmissionID, row.Attempts)
			sum.Failed++
			continue
		}

		s.attempt(ctx, row, &sum)
	}

	if sum.Scanned > 0 {
		log.Infof("[Sweeper] Pass done: scanned=%d associated=%d failed=%d pending=%d errors=%d",
			sum.Scanned, sum.Associated, sum.Failed, sum.Pending, sum.Errors)
	}
	return sum, nil
}

// ReconcileEmail attempts every pending row for one address.
func (s *Sweeper) ReconcileEmail(ctx context.Context, email string) (Summary, error) {
	norm := models.NormaliseEmail(email)
	if norm == "" {
		return Summary{}, nil
	}
	rows, err := s.submissions.ListPendingByEmail(ctx, norm, s.batchSize())
	if err != nil {
		return Summary{}, fmt.Errorf("list pending by email: %w", err)
	}

	var sum Summary
	for i := range rows {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Scanned++
		s.attempt(ctx, &rows[i], &sum)
	}
	return sum, nil
}

// ReconcileUser reconciles the pending rows that match a user's email.
func (s *Sweeper) ReconcileUser(ctx context.Context, userID uint) (Summary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.Email == "" {
		return Summary{}, nil
	}
	return s.ReconcileEmail(ctx, user.Email)
}

// OnUserCreated reconciles inline.
func (s *Sweeper) OnUserCreated(ctx context.Context, userID uint) error {
	sum, err := s.ReconcileUser(ctx, userID)
	if err != nil {
		return err
	}
	if sum.Associated > 0 {
		log.Infof("[Sweeper] User %d picked up %d earlier submission(s)", userID, sum.Associated)
	}
	return nil
}

func (s *Sweeper) attempt(ctx context.Context, row *models.Submission, sum *Summary) {
	res, err := s.engine.Attempt(ctx, row)
	if err != nil {
		log.Errorf("[Sweeper] Attempt for submission %d failed: %v", row.ID, err)
		sum.Errors++
		return
	}
	if res.Associated {
		sum.Associated++
		return
	}
	sum.Pending++
}

func (s *Sweeper) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

func (s *Sweeper) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
