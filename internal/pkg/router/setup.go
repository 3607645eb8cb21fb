package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/gravity-bridge/app/controllers"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/ingest"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/sweeper"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Ingest          *ingest.Service
	Verifier        *signature.Verifier
	Submissions     repository.SubmissionRepository
	Reconciler      controllers.Reconciler
	Jobs            controllers.JobQueue
	Scheduler       controllers.Scheduler
	UserCreatedHook sweeper.UserCreatedHook
	AdminKeyHash    string
	RateLimit       int
	LimiterStorage  fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
