package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// IngestRateLimiter limits webhook calls per client IP. storage may be nil,
// in which case counters live in process memory.
func IngestRateLimiter(perMinute int, storage fiber.Storage) fiber.Handler {
	if perMinute <= 0 {
		perMinute = 120
	}
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "qgs_ingest:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"success": false, "error": "rate_limited", "message": "Too many requests."})
		},
	})
}
