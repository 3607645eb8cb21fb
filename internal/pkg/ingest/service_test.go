package ingest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/app/repository"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/association"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/profile"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/signature"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/testutil"
)

const testSecret = "shared-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	repos   *repository.Repositories
	service *Service
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	verifier := signature.NewVerifier(secret)
	verifier.Now = func() time.Time { return fixedNow }
	engine := association.NewEngine(repos.Submission, repos.User, profile.NewDBStore(repos.Profile))
	engine.Now = func() time.Time { return fixedNow }
	return &fixture{db: db, repos: repos, service: NewService(verifier, repos.Submission, engine)}
}

func signed(body string) Request {
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	return Request{
		Body:      []byte(body),
		Timestamp: ts,
		Signature: signature.Sign(testSecret, ts, []byte(body)),
	}
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&n).Error)
	return n
}

const validBody = `{"submission_id":"S1","email":" Foo@Bar.com ","submitted_at":"2026-01-15T10:00:00Z","name":"Foo","scoring_version":"v2","source":"landing","gravityscore_grade":"a","strategy_grade":"E","funnel_grade":"","traffic_grade":"D"}`

func TestHandle_StoresPendingSubmission(t *testing.T) {
	f := newFixture(t, testSecret)

	resp := f.service.Handle(context.Background(), signed(validBody))
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "S1", resp.SubmissionID)
	assert.False(t, resp.Duplicate)
	assert.False(t, resp.Associated)

	row, err := f.repos.Submission.GetBySubmissionID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "foo@bar.com", row.EmailNormalised)
	assert.Equal(t, models.SubmissionStatusPending, row.Status)
	assert.True(t, row.SubmittedAt.Equal(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "A", models.StringValue(row.GravityscoreGrade))
	assert.Nil(t, row.StrategyGrade)
	assert.Nil(t, row.FunnelGrade)
	assert.Equal(t, "D", models.StringValue(row.TrafficGrade))
	assert.Equal(t, 1, row.Attempts, "inline attempt is recorded")
}

func TestHandle_AssociatesInlineWhenUserExists(t *testing.T) {
	f := newFixture(t, testSecret)
	user := testutil.CreateUser(t, f.db, "Foo", "foo@bar.com")

	resp := f.service.Handle(context.Background(), signed(validBody))
	require.True(t, resp.Success)
	assert.True(t, resp.Associated)
	require.NotNil(t, resp.UserID)
	assert.Equal(t, user.ID, *resp.UserID)
}

func TestHandle_DuplicateIsAcknowledged(t *testing.T) {
	f := newFixture(t, testSecret)
	user := testutil.CreateUser(t, f.db, "Foo", "foo@bar.com")

	first := f.service.Handle(context.Background(), signed(validBody))
	require.True(t, first.Success)

	second := f.service.Handle(context.Background(), signed(`{"submission_id":"S1","email":"other@bar.com","submitted_at":"2027-01-01"}`))
	require.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.True(t, second.Associated)
	require.NotNil(t, second.UserID)
	assert.Equal(t, user.ID, *second.UserID)
	assert.Equal(t, int64(1), f.count(t))

	row, err := f.repos.Submission.GetBySubmissionID(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, "foo@bar.com", row.EmailNormalised, "duplicates never modify the row")
}

func TestHandle_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, testSecret)

	const callers = 6
	var wg sync.WaitGroup
	responses := make(chan Response, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responses <- f.service.Handle(context.Background(), signed(validBody))
		}()
	}
	wg.Wait()
	close(responses)

	fresh := 0
	for resp := range responses {
		assert.True(t, resp.Success)
		if !resp.Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, int64(1), f.count(t))
}

func TestHandle_AuthFailuresStoreNothing(t *testing.T) {
	f := newFixture(t, testSecret)
	good := signed(validBody)
	stale := strconv.FormatInt(fixedNow.Add(-301*time.Second).Unix(), 10)

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"missing timestamp", Request{Body: good.Body, Signature: good.Signature}, "missing_auth"},
		{"missing signature", Request{Body: good.Body, Timestamp: good.Timestamp}, "missing_auth"},
		{"expired", Request{Body: good.Body, Timestamp: stale, Signature: signature.Sign(testSecret, stale, good.Body)}, "expired"},
		{"tampered body", Request{Body: []byte(validBody + " "), Timestamp: good.Timestamp, Signature: good.Signature}, "bad_signature"},
		{"wrong secret", Request{Body: good.Body, Timestamp: good.Timestamp, Signature: signature.Sign("other", good.Timestamp, good.Body)}, "bad_signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.service.Handle(context.Background(), tt.req)
			assert.False(t, resp.Success)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
	assert.Equal(t, int64(0), f.count(t))
}

func TestHandle_NotConfigured(t *testing.T) {
	f := newFixture(t, "")

	resp := f.service.Handle(context.Background(), signed(validBody))
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "not_configured", resp.Code)
	assert.Equal(t, int64(0), f.count(t))
}

func TestHandle_ValidationFailures(t *testing.T) {
	f := newFixture(t, testSecret)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `submission_id=S1`, "invalid_json"},
		{"array", `[1,2]`, "invalid_json"},
		{"trailing data", `{"submission_id":"S1"} {}`, "invalid_json"},
		{"missing email", `{"submission_id":"S1","submitted_at":"2026-01-15"}`, "missing_fields"},
		{"blank id", `{"submission_id":"   ","email":"a@b.com","submitted_at":"2026-01-15"}`, "missing_fields"},
		{"missing submitted_at", `{"submission_id":"S1","email":"a@b.com"}`, "missing_fields"},
		{"id too long", `{"submission_id":"` + longID() + `","email":"a@b.com","submitted_at":"2026-01-15"}`, "invalid_payload"},
		{"bad submitted_at", `{"submission_id":"S1","email":"a@b.com","submitted_at":"soon"}`, "invalid_submitted_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.service.Handle(context.Background(), signed(tt.body))
			assert.False(t, resp.Success)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
	assert.Equal(t, int64(0), f.count(t))
}

func longID() string {
	b := make([]byte, 65)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}

type failingInsertRepo struct {
	repository.SubmissionRepository
}

func (failingInsertRepo) CreateIfNotExists(ctx context.Context, submission *models.Submission) (bool, *models.Submission, error) {
	return false, nil, errors.New("too many connections")
}

type countingAttempter struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAttempter) Attempt(ctx context.Context, row *models.Submission) (association.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return association.Result{Status: row.Status}, nil
}

func TestHandle_InsertFailureSkipsAssociation(t *testing.T) {
	f := newFixture(t, testSecret)
	verifier := signature.NewVerifier(testSecret)
	verifier.Now = func() time.Time { return fixedNow }
	attempter := &countingAttempter{}
	service := NewService(verifier, failingInsertRepo{f.repos.Submission}, attempter)

	resp := service.Handle(context.Background(), signed(validBody))
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "storage_error", resp.Code)
	assert.ErrorIs(t, resp.Err, ErrStorage)
	assert.NotContains(t, resp.Message, "too many connections")
	assert.Zero(t, attempter.calls)
	assert.Zero(t, f.count(t))
}
