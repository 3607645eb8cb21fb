package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/jobqueue"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/sweeper"
)

const (
	adminSearchLimit = 50
	adminTimeout     = 5 * time.Minute
)

// Reconciler is the part of the sweeper the admin surface drives.
type Reconciler interface {
	RunOnce(ctx context.Context) (sweeper.Summary, error)
	ReconcileEmail(ctx context.Context, email string) (sweeper.Summary, error)
}

// JobQueue is the background queue retries can be handed to.
type JobQueue interface {
	EnqueueReconcileEmail(ctx context.Context, email string) (*jobqueue.Job, error)
	GetJob(ctx context.Context, jobID string) (*jobqueue.Job, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
}

// Scheduler reports whether the periodic sweep is active.
type Scheduler interface {
	IsRunning() bool
}

// AdminController exposes read-only stats and manual retry triggers.
type AdminController struct {
	submissions repository.SubmissionRepository
	reconciler  Reconciler
	jobs        JobQueue
	scheduler   Scheduler
	validate    *validator.Validate
}

// NewAdminController builds the admin handlers. jobs and scheduler may be nil
// when the process runs without a background queue.
func NewAdminController(submissions repository.SubmissionRepository, reconciler Reconciler, jobs JobQueue, scheduler Scheduler) *AdminController {
	return &AdminController{
		submissions: submissions,
		reconciler:  reconciler,
		jobs:        jobs,
		scheduler:   scheduler,
		validate:    validator.New(),
	}
}

type emailInput struct {
	Email string `json:"email" validate:"required,email,max=191"`
}

type retryInput struct {
	emailInput
	Async bool `json:"async"`
}

// HandleStats returns submission counts per status plus queue health.
func (ac *AdminController) HandleStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	counts, err := ac.submissions.Counts(ctx)
	if err != nil {
		log.Errorf("[Admin] Counting submissions failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "storage_error", "Could not load stats.")
	}

	out := fiber.Map{"success": true, "stats": counts}
	if ac.scheduler != nil {
		out["scheduler_running"] = ac.scheduler.IsRunning()
	}
	if ac.jobs != nil {
		// queue numbers are best effort, a Redis outage must not hide the counts
		if size, err := ac.jobs.GetQueueSize(ctx); err != nil {
			log.Warnf("[Admin] Reading queue size failed: %v", err)
		} else {
			out["queue_size"] = size
		}
		if stats, err := ac.jobs.GetJobStats(ctx); err != nil {
			log.Warnf("[Admin] Reading job stats failed: %v", err)
		} else {
			out["job_stats"] = stats
		}
	}
	return c.JSON(out)
}

// HandleSearch lists the newest submissions for one email.
func (ac *AdminController) HandleSearch(c *fiber.Ctx) error {
	in := emailInput{Email: models.NormaliseEmail(c.Query("email"))}
	if err := ac.validate.Struct(in); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_email", "A valid email is required.")
	}

	rows, err := ac.submissions.ListByEmail(c.UserContext(), in.Email, adminSearchLimit)
	if err != nil {
		log.Errorf("[Admin] Listing submissions for %s failed: %v", in.Email, err)
		return errorJSON(c, fiber.StatusInternalServerError, "storage_error", "Could not load submissions.")
	}
	return c.JSON(fiber.Map{"success": true, "submissions": rows})
}

// HandleRetryEmail re-attempts every pending submission for an email. With
// "async": true the retry is queued and the job ID returned instead.
func (ac *AdminController) HandleRetryEmail(c *fiber.Ctx) error {
	var in retryInput
	if err := c.BodyParser(&in); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_json", "Invalid JSON.")
	}
	in.Email = models.NormaliseEmail(in.Email)
	if err := ac.validate.Struct(in.emailInput); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_email", "A valid email is required.")
	}

	if in.Async {
		if ac.jobs == nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, "queue_unavailable", "Background queue not available.")
		}
		job, err := ac.jobs.EnqueueReconcileEmail(c.UserContext(), in.Email)
		if err != nil {
			log.Errorf("[Admin] Queueing retry for %s failed: %v", in.Email, err)
			return errorJSON(c, fiber.StatusInternalServerError, "enqueue_failed", "Could not queue retry.")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "job_id": job.ID, "status": job.Status})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	sum, err := ac.reconciler.ReconcileEmail(ctx, in.Email)
	if err != nil {
		log.Errorf("[Admin] Retry for %s failed: %v", in.Email, err)
		return errorJSON(c, fiber.StatusInternalServerError, "retry_failed", "Retry failed.")
	}
	return c.JSON(fiber.Map{"success": true, "associated": sum.Associated, "summary": sum})
}

// HandleSweep runs one sweep batch synchronously.
func (ac *AdminController) HandleSweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	sum, err := ac.reconciler.RunOnce(ctx)
	if err != nil {
		log.Errorf("[Admin] Manual sweep failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "sweep_failed", "Sweep failed.")
	}
	return c.JSON(fiber.Map{"success": true, "summary": sum})
}

// HandleJobStatus reports a queued job. Completed jobs are removed from the
// queue, so a finished retry answers 404.
func (ac *AdminController) HandleJobStatus(c *fiber.Ctx) error {
	if ac.jobs == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "queue_unavailable", "Background queue not available.")
	}
	job, err := ac.jobs.GetJob(c.UserContext(), c.Params("id"))
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "job_not_found", "Job not found or already completed.")
	}
	if err != nil {
		log.Errorf("[Admin] Loading job %s failed: %v", c.Params("id"), err)
		return errorJSON(c, fiber.StatusInternalServerError, "queue_error", "Could not load job.")
	}
	return c.JSON(fiber.Map{"success": true, "job": job})
}
