package association

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/profile"
)

// Payload carries the submission fields copied into a user's snapshot.
type Payload struct {
	SubmissionID      string
	SubmittedAt       string
	ScoringVersion    *string
	Source            *string
	Name              *string
	GravityscoreGrade *string
	StrategyGrade     *string
	FunnelGrade       *string
	TrafficGrade      *string
}

// PayloadFromSubmission builds the snapshot payload of a stored row.
func PayloadFromSubmission(s *models.Submission) Payload {
	return Payload{
		SubmissionID:      s.SubmissionID,
		SubmittedAt:       s.SubmittedAt.UTC().Format(time.RFC3339Nano),
		ScoringVersion:    s.ScoringVersion,
		Source:            s.Source,
		Name:              s.Name,
		GravityscoreGrade: s.GravityscoreGrade,
		StrategyGrade:     s.StrategyGrade,
		FunnelGrade:       s.FunnelGrade,
		TrafficGrade:      s.TrafficGrade,
	}
}

// MergeSnapshot overwrites the user's snapshot only when the payload is
// strictly newer than the stored latest_at, or no usable latest_at exists.
// An unparsable incoming time leaves the snapshot untouched.
func (e *Engine) MergeSnapshot(ctx context.Context, userID uint, p Payload) (bool, error) {
	incoming, err := models.ParseSubmittedAt(p.SubmittedAt)
	if err != nil {
		return false, nil
	}

	existing, err := e.profiles.GetField(ctx, userID, profile.FieldLatestAt)
	if err != nil {
		return false, err
	}
	if existing != nil && strings.TrimSpace(*existing) != "" {
		if stored, parseErr := models.ParseSubmittedAt(*existing); parseErr == nil && !incoming.After(stored) {
			return false, nil
		}
	}

	latestAt := incoming.Format(time.RFC3339Nano)
	fields := map[string]*string{
		profile.FieldLatestSubmissionID: models.OptionalString(p.SubmissionID),
		profile.FieldLatestAt:           &latestAt,
		profile.FieldScoringVersion:     trimmed(p.ScoringVersion),
		profile.FieldSource:             trimmed(p.Source),
		profile.FieldName:               trimmed(p.Name),
		profile.FieldGravityscoreGrade:  grade(p.GravityscoreGrade),
		profile.FieldStrategyGrade:      grade(p.StrategyGrade),
		profile.FieldFunnelGrade:        grade(p.FunnelGrade),
		profile.FieldTrafficGrade:       grade(p.TrafficGrade),
	}
	if err := e.profiles.SetFields(ctx, userID, fields); err != nil {
		return false, err
	}
	return true, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	return models.OptionalString(*v)
}

func grade(v *string) *string {
	if v == nil {
		return nil
	}
	return models.CleanGrade(*v)
}
