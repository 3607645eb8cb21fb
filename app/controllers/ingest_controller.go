package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/gravity-bridge/internal/pkg/ingest"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
)

const ingestTimeout = 15 * time.Second

// IngestController receives signed submission webhooks.
type IngestController struct {
	service *ingest.Service
}

func NewIngestController(service *ingest.Service) *IngestController {
	return &IngestController{service: service}
}

// HandleSubmission verifies, stores and associates one submission.
func (ic *IngestController) HandleSubmission(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(c.UserContext(), ingestTimeout)
	defer cancel()

	resp := ic.service.Handle(ctx, ingest.Request{
		Body:      rawBody,
		Timestamp: c.Get(signature.TimestampHeader),
		Signature: c.Get(signature.SignatureHeader),
	})
	if !resp.Success {
		return errorJSON(c, resp.StatusCode, resp.Code, resp.Message)
	}

	// user_id is always present and null until the submission is associated.
	return c.Status(resp.StatusCode).JSON(fiber.Map{
		"success":       true,
		"message":       resp.Message,
		"submission_id": resp.SubmissionID,
		"duplicate":     resp.Duplicate,
		"associated":    resp.Associated,
		"user_id":       resp.UserID,
	})
}
