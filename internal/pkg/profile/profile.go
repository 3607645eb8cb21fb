package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/gravity-bridge/app/repository"
)

// Snapshot field names as stored per user.
const (
	FieldLatestSubmissionID = "qgs_latest_submission_id"
	FieldLatestAt           = "qgs_latest_at"
	FieldScoringVersion     = "qgs_scoring_version"
	FieldSource             = "qgs_source"
	FieldName               = "qgs_name"
	FieldGravityscoreGrade  = "qgs_gravityscore_grade"
	FieldStrategyGrade      = "qgs_strategy_grade"
	FieldFunnelGrade        = "qgs_funnel_grade"
	FieldTrafficGrade       = "qgs_traffic_grade"
)

const (
	BackendDB    = "db"
	BackendRedis = "redis"
)

var ErrUnknownBackend = errors.New("unknown profile store backend")

// Store is the per-user key-value profile store. A nil value means the field
// is absent. SetFields applies all values together.
type Store interface {
	GetField(ctx context.Context, userID uint, field string) (*string, error)
	SetFields(ctx context.Context, userID uint, fields map[string]*string) error
}

// DBStore keeps profile fields in the user_meta table.
type DBStore struct {
	repo repository.ProfileRepository
}

func NewDBStore(repo repository.ProfileRepository) *DBStore {
	return &DBStore{repo: repo}
}

func (s *DBStore) GetField(ctx context.Context, userID uint, field string) (*string, error) {
	value, _, err := s.repo.GetMeta(ctx, userID, field)
	return value, err
}

func (s *DBStore) SetFields(ctx context.Context, userID uint, fields map[string]*string) error {
	return s.repo.SetMetas(ctx, userID, fields)
}

// NewStore selects a backend by name. The Redis client is only needed for the
// redis backend.
func NewStore(backend string, repo repository.ProfileRepository, client *redis.Client) (Store, error) {
	switch backend {
	case "", BackendDB:
		return NewDBStore(repo), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis client is nil", ErrUnknownBackend)
		}
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
