package controllers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/sweeper"
)

// UserCreatedController lets the identity directory announce new accounts so
// pending submissions for that email are associated right away.
type UserCreatedController struct {
	verifier *signature.Verifier
	hook     sweeper.UserCreatedHook
}

func NewUserCreatedController(verifier *signature.Verifier, hook sweeper.UserCreatedHook) *UserCreatedController {
	return &UserCreatedController{verifier: verifier, hook: hook}
}

type userCreatedPayload struct {
	UserID uint `json:"user_id"`
}

// HandleUserCreated expects a signed {"user_id": N} body.
func (uc *UserCreatedController) HandleUserCreated(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	if err := uc.verifier.Verify(rawBody, c.Get(signature.TimestampHeader), c.Get(signature.SignatureHeader)); err != nil {
		return signatureFailure(c, err)
	}

	var payload userCreatedPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil || payload.UserID == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "invalid_payload", "user_id is required.")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), ingestTimeout)
	defer cancel()

	if err := uc.hook.OnUserCreated(ctx, payload.UserID); err != nil {
		log.Errorf("[UserCreated] Reconcile for user %d failed: %v", payload.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "reconcile_failed", "Could not reconcile user.")
	}

	return c.JSON(fiber.Map{"success": true, "user_id": payload.UserID})
}
