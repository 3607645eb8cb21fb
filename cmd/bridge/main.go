package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/association"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/cache"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/database"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/env"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/ingest"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/jobqueue"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/profile"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/router"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/sweeper"
)

func main() {
	app, manager := NewApplication()
	manager.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		manager.Stop()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
	_ = cache.Close()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	db := database.SetupDatabase()
	cache.SetupCache()
	redisClient := cache.GetClient()

	repos := repository.NewFactory(db).GetRepositories()

	profiles, err := profile.NewStore(env.GetEnv("QGS_PROFILE_STORE", profile.BackendDB), repos.Profile, redisClient)
	if err != nil {
		log.Fatalf("Profile store: %v", err)
	}

	verifier := signature.NewVerifier(env.GetEnv("QGS_SHARED_SECRET", ""))
	verifier.Window = time.Duration(env.GetInt("QGS_REPLAY_WINDOW_SECONDS", 300)) * time.Second
	if verifier.Secret == "" {
		log.Println("Warning: QGS_SHARED_SECRET is empty, ingestion will answer 500")
	}

	engine := association.NewEngine(repos.Submission, repos.User, profiles)
	sw := sweeper.New(repos.Submission, repos.User, engine)
	sw.BatchSize = env.GetInt("QGS_SWEEP_BATCH_SIZE", sweeper.DefaultBatchSize)
	sw.MaxAttempts = env.GetInt("QGS_MAX_ATTEMPTS", sweeper.DefaultMaxAttempts)

	queue := jobqueue.NewQueue(redisClient, sw, env.GetInt("JOBQUEUE_WORKERS", 2))
	interval := time.Duration(env.GetInt("QGS_SWEEP_INTERVAL_MINUTES", 15)) * time.Minute
	manager := jobqueue.NewManager(queue, sw, interval)

	// Run one sweep at startup so rows left pending by a restart are picked up.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := sw.RunOnce(ctx); err != nil {
			log.Printf("Startup sweep failed: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	basePath := findBasePath()
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	router.InstallRouter(app, router.Dependencies{
		Ingest:          ingest.NewService(verifier, repos.Submission, engine),
		Verifier:        verifier,
		Submissions:     repos.Submission,
		Reconciler:      sw,
		Jobs:            manager.GetQueue(),
		Scheduler:       manager,
		UserCreatedHook: queue,
		AdminKeyHash:    env.GetEnv("ADMIN_API_KEY_HASH", ""),
		RateLimit:       env.GetInt("QGS_RATE_LIMIT_PER_MINUTE", 120),
		LimiterStorage:  cache.NewFiberStorage(),
	})

	return app, manager
}

func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/bridge to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	log.Println("Warning: docs/v1/openapi.yml not found, swagger UI disabled")
	return ""
}
