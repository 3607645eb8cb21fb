package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
)

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// signatureFailure answers a failed verification the same way the ingestion
// endpoint does.
func signatureFailure(c *fiber.Ctx, err error) error {
	f := signature.Describe(err)
	return errorJSON(c, f.Status, f.Code, f.Message)
}

// HandleHealthz is the liveness probe.
func HandleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}
