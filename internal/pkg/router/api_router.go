package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/gravity-bridge/app/controllers"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", controllers.HandleHealthz)
	adminKey := middleware.AdminAPIKeyMiddleware(h.deps.AdminKeyHash)

	// fiber metrics
	app.Get("/metrics", adminKey, monitor.New())

	api := app.Group("/api")
	v1 := api.Group("/v1")

	ingestController := controllers.NewIngestController(h.deps.Ingest)
	hookController := controllers.NewUserCreatedController(h.deps.Verifier, h.deps.UserCreatedHook)
	limit := middleware.IngestRateLimiter(h.deps.RateLimit, h.deps.LimiterStorage)

	v1.Post("/qgs", limit, ingestController.HandleSubmission)
	v1.Post("/hooks/user-created", limit, hookController.HandleUserCreated)

	adminController := controllers.NewAdminController(h.deps.Submissions, h.deps.Reconciler, h.deps.Jobs, h.deps.Scheduler)
	admin := v1.Group("/admin", adminKey)
	admin.Get("/stats", adminController.HandleStats)
	admin.Get("/submissions", adminController.HandleSearch)
	admin.Post("/submissions/retry", adminController.HandleRetryEmail)
	admin.Post("/sweep", adminController.HandleSweep)
	admin.Get("/jobs/:id", adminController.HandleJobStatus)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
