package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/association"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
)

var (
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidSubmittedAt = errors.New("invalid submitted_at")
	ErrStorage            = errors.New("storage error")
)

// Attempter performs the inline association attempt.
type Attempter interface {
	Attempt(ctx context.Context, row *models.Submission) (association.Result, error)
}

// Request is one inbound webhook call: the exact raw body plus auth headers.
type Request struct {
	Body      []byte
	Timestamp string
	Signature string
}

// Response is the structured outcome of Handle. Err is set on failure and is
// never shown to the caller verbatim.
type Response struct {
	StatusCode   int
	Success      bool
	Code         string
	Message      string
	SubmissionID string
	Duplicate    bool
	Associated   bool
	UserID       *uint
	Err          error
}

type submissionInput struct {
	SubmissionID   string `validate:"required,max=64"`
	Email          string `validate:"required,max=191"`
	SubmittedAt    string `validate:"required"`
	Name           string `validate:"max=191"`
	ScoringVersion string `validate:"max=64"`
	Source         string `validate:"max=191"`
}

// Service verifies, stores and immediately tries to associate submissions.
type Service struct {
	verifier    *signature.Verifier
	submissions repository.SubmissionRepository
	engine      Attempter
	validate    *validator.Validate
}

func NewService(verifier *signature.Verifier, submissions repository.SubmissionRepository, engine Attempter) *Service {
	return &Service{
		verifier:    verifier,
		submissions: submissions,
		engine:      engine,
		validate:    validator.New(),
	}
}

// Handle runs the whole ingestion pipeline for one request.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	if err := s.verifier.Verify(req.Body, req.Timestamp, req.Signature); err != nil {
		return verifyFailure(err)
	}

	fields, err := decodeObject(req.Body)
	if err != nil {
		return failure(http.StatusBadRequest, "invalid_json", "Invalid JSON.", err)
	}

	in := submissionInput{
		SubmissionID:   fields["submission_id"],
		Email:          fields["email"],
		SubmittedAt:    fields["submitted_at"],
		Name:           fields["name"],
		ScoringVersion: fields["scoring_version"],
		Source:         fields["source"],
	}
	if err := s.validate.Struct(in); err != nil {
		return validationFailure(err)
	}

	submittedAt, err := models.ParseSubmittedAt(in.SubmittedAt)
	if err != nil {
		return failure(http.StatusBadRequest, "invalid_submitted_at", "submitted_at is not a valid date/time.", ErrInvalidSubmittedAt)
	}

	existing, err := s.submissions.GetBySubmissionID(ctx, in.SubmissionID)
	if err == nil {
		return duplicate(existing)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Errorf("[Ingest] Lookup of submission %s failed: %v", in.SubmissionID, err)
		return failure(http.StatusInternalServerError, "storage_error", "Could not store submission.", fmt.Errorf("%w: %v", ErrStorage, err))
	}

	row := &models.Submission{
		SubmissionID:      in.SubmissionID,
		EmailNormalised:   models.NormaliseEmail(in.Email),
		Name:              models.OptionalString(in.Name),
		SubmittedAt:       submittedAt,
		ScoringVersion:    models.OptionalString(in.ScoringVersion),
		Source:            models.OptionalString(in.Source),
		GravityscoreGrade: models.CleanGrade(fields["gravityscore_grade"]),
		StrategyGrade:     models.CleanGrade(fields["strategy_grade"]),
		FunnelGrade:       models.CleanGrade(fields["funnel_grade"]),
		TrafficGrade:      models.CleanGrade(fields["traffic_grade"]),
		Status:            models.SubmissionStatusPending,
	}
	created, stored, err := s.submissions.CreateIfNotExists(ctx, row)
	if err != nil {
		log.Errorf("[Ingest] Insert of submission %s failed: %v", in.SubmissionID, err)
		return failure(http.StatusInternalServerError, "storage_error", "Could not store submission.", fmt.Errorf("%w: %v", ErrStorage, err))
	}
	if !created {
		// Lost a race against a concurrent insert of the same key.
		return duplicate(stored)
	}
	log.Infof("[Ingest] Stored submission %s (id=%d)", stored.SubmissionID, stored.ID)

	resp := Response{
		StatusCode:   http.StatusOK,
		Success:      true,
		Message:      "Submission stored.",
		SubmissionID: stored.SubmissionID,
	}
	res, err := s.engine.Attempt(ctx, stored)
	if err != nil {
		// The sweeper will retry; the submission itself is safely stored.
		log.Warnf("[Ingest] Inline association for %s failed: %v", stored.SubmissionID, err)
		return resp
	}
	resp.Associated = res.Associated
	resp.UserID = res.UserID
	return resp
}

func duplicate(existing *models.Submission) Response {
	return Response{
		StatusCode:   http.StatusOK,
		Success:      true,
		Message:      "Duplicate submission.",
		SubmissionID: existing.SubmissionID,
		Duplicate:    true,
		Associated:   existing.Status == models.SubmissionStatusAssociated,
		UserID:       existing.UserID,
	}
}

func failure(status int, code, message string, err error) Response {
	return Response{StatusCode: status, Code: code, Message: message, Err: err}
}

func verifyFailure(err error) Response {
	if errors.Is(err, signature.ErrNotConfigured) {
		log.Error("[Ingest] Shared secret is not configured")
	}
	f := signature.Describe(err)
	return failure(f.Status, f.Code, f.Message, err)
}

func validationFailure(err error) Response {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return failure(http.StatusBadRequest, "missing_fields",
					"Missing required fields: submission_id, email, submitted_at.", ErrMissingFields)
			}
		}
	}
	return failure(http.StatusBadRequest, "invalid_payload", "Invalid field value.", fmt.Errorf("%w: %v", ErrInvalidPayload, err))
}

// decodeObject parses a JSON object and flattens its top-level values to
// trimmed strings. Nested values are ignored.
func decodeObject(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidPayload)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = strings.TrimSpace(val)
		case json.Number:
			out[k] = val.String()
		case bool:
			if val {
				out[k] = "1"
			}
		}
	}
	return out, nil
}
