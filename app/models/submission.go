package models

import (
	"strings"
	"time"
)

const (
	SubmissionStatusPending    = "pending"
	SubmissionStatusAssociated = "associated"
	SubmissionStatusFailed     = "failed"
)

// Submission is one inbound scoring event from the marketing site. SubmissionID
// is the external idempotency key and is unique across the table.
type Submission struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SubmissionID      string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_qgs_submissions_submission_id" json:"submission_id"`
	EmailNormalised   string     `gorm:"type:varchar(191);not null;index" json:"email_normalised"`
	Name              *string    `gorm:"type:varchar(191)" json:"name,omitempty"`
	SubmittedAt       time.Time  `gorm:"type:datetime(6);not null;index" json:"submitted_at"`
	ScoringVersion    *string    `gorm:"type:varchar(64)" json:"scoring_version,omitempty"`
	Source            *string    `gorm:"type:varchar(191)" json:"source,omitempty"`
	GravityscoreGrade *string    `gorm:"type:char(1)" json:"gravityscore_grade,omitempty"`
	StrategyGrade     *string    `gorm:"type:char(1)" json:"strategy_grade,omitempty"`
	FunnelGrade       *string    `gorm:"type:char(1)" json:"funnel_grade,omitempty"`
	TrafficGrade      *string    `gorm:"type:char(1)" json:"traffic_grade,omitempty"`
	UserID            *uint      `gorm:"index" json:"user_id,omitempty"`
	AssociatedAt      *time.Time `gorm:"type:datetime;index" json:"associated_at,omitempty"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt     *time.Time `gorm:"type:datetime" json:"last_attempt_at,omitempty"`
	LastError         *string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Submission) TableName() string {
	return "qgs_submissions"
}

// IsPending reports whether the submission can still be reconciled.
func (s *Submission) IsPending() bool {
	return s.Status == SubmissionStatusPending
}

// NormaliseEmail lowercases and trims an address for matching. No alias or
// plus-tag canonicalisation is applied.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CleanGrade maps a raw grade to one of A, B, C or D. Anything else is absent.
func CleanGrade(value string) *string {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch v {
	case "A", "B", "C", "D":
		return &v
	default:
		return nil
	}
}

// OptionalString trims a value and returns nil for the empty string.
func OptionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

// StringValue dereferences an optional string, returning "" for nil.
func StringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

var submittedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSubmittedAt parses an externally supplied event time. Values without a
// zone are read as UTC. The result is truncated to the microsecond precision
// submitted_at is stored with.
func ParseSubmittedAt(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	var lastErr error
	for _, layout := range submittedAtLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
