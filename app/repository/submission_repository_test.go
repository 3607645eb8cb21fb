package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/gravity-bridge/app/models"
	"github.com/ManuelReschke/gravity-bridge/internal/pkg/testutil"
)

func newSubmission(id, email string, submittedAt time.Time) *models.Submission {
	return &models.Submission{
		SubmissionID:    id,
		EmailNormalised: email,
		SubmittedAt:     submittedAt,
	}
}

func TestSubmissionRepository_CreateIfNotExists(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	created, stored, err := repo.CreateIfNotExists(ctx, newSubmission("S1", "foo@bar.com", at))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, models.SubmissionStatusPending, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	created, again, err := repo.CreateIfNotExists(ctx, newSubmission("S1", "other@bar.com", at.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, "foo@bar.com", again.EmailNormalised, "first write wins")

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmissionRepository_ConcurrentCreateKeepsOneRow(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSubmissionRepository(db)
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, _, err := repo.CreateIfNotExists(context.Background(), newSubmission("S-race", "a@b.com", at))
			assert.NoError(t, err)
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	var count int64
	require.NoError(t, db.Model(&models.Submission{}).Where("submission_id = ?", "S-race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubmissionRepository_GetBySubmissionID_NotFound(t *testing.T) {
	repo := NewSubmissionRepository(testutil.NewDB(t))

	_, err := repo.GetBySubmissionID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionRepository_MarkAssociatedOnlyFromPending(t *testing.T) {
	repo := NewSubmissionRepository(testutil.NewDB(t))
	ctx := context.Background()
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	_, row, err := repo.CreateIfNotExists(ctx, newSubmission("S1", "foo@bar.com", at))
	require.NoError(t, err)

	updated, err := repo.MarkAssociated(ctx, row.ID, 7, at)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = repo.MarkAssociated(ctx, row.ID, 8, at)
	require.NoError(t, err)
	assert.False(t, updated, "associated rows are terminal")

	got, err := repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusAssociated, got.Status)
	require.NotNil(t, got.UserID)
	assert.Equal(t, uint(7), *got.UserID)
	require.NotNil(t, got.AssociatedAt)

	// Terminal rows ignore attempt bookkeeping too.
	require.NoError(t, repo.BumpAttempt(ctx, row.ID, "x", at))
	require.NoError(t, repo.MarkFailed(ctx, row.ID, "x", at))
	got, err = repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusAssociated, got.Status)
	assert.Equal(t, 0, got.Attempts)
}

func TestSubmissionRepository_BumpAttemptAndMarkFailed(t *testing.T) {
	repo := NewSubmissionRepository(testutil.NewDB(t))
	ctx := context.Background()
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	_, row, err := repo.CreateIfNotExists(ctx, newSubmission("S1", "foo@bar.com", at))
	require.NoError(t, err)

	require.NoError(t, repo.BumpAttempt(ctx, row.ID, "No matching user for email", at))
	require.NoError(t, repo.BumpAttempt(ctx, row.ID, "No matching user for email", at.Add(time.Minute)))

	got, err := repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastAttemptAt)
	assert.True(t, got.LastAttemptAt.Equal(at.Add(time.Minute)))
	assert.Equal(t, "No matching user for email", models.StringValue(got.LastError))

	require.NoError(t, repo.MarkFailed(ctx, row.ID, "Max attempts exceeded", at))
	got, err = repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusFailed, got.Status)
	assert.Nil(t, got.UserID)

	updated, err := repo.MarkAssociated(ctx, row.ID, 1, at)
	require.NoError(t, err)
	assert.False(t, updated, "failed rows are terminal")
}

func TestSubmissionRepository_ListPendingBatchOrdering(t *testing.T) {
	repo := NewSubmissionRepository(testutil.NewDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ids := map[string]uint{}
	for i, name := range []string{"old-attempted", "recent-attempted", "fresh-a", "fresh-b", "done"} {
		_, row, err := repo.CreateIfNotExists(ctx, newSubmission(name, fmt.Sprintf("u%d@x.com", i), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		ids[name] = row.ID
	}
	_, err := repo.MarkAssociated(ctx, ids["done"], 1, base)
	require.NoError(t, err)
	require.NoError(t, repo.BumpAttempt(ctx, ids["old-attempted"], "x", base.Add(time.Hour)))
	require.NoError(t, repo.BumpAttempt(ctx, ids["recent-attempted"], "x", base.Add(2*time.Hour)))

	rows, err := repo.ListPendingBatch(ctx, 10)
	require.NoError(t, err)

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.SubmissionID)
	}
	assert.Equal(t, []string{"fresh-a", "fresh-b", "old-attempted", "recent-attempted"}, names)

	limited, err := repo.ListPendingBatch(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSubmissionRepository_EmailListsAndCounts(t *testing.T) {
	repo := NewSubmissionRepository(testutil.NewDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"A", "B", "C"} {
		_, _, err := repo.CreateIfNotExists(ctx, newSubmission(id, "foo@bar.com", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, other, err := repo.CreateIfNotExists(ctx, newSubmission("D", "x@y.com", base))
	require.NoError(t, err)

	b, err := repo.GetBySubmissionID(ctx, "B")
	require.NoError(t, err)
	_, err = repo.MarkAssociated(ctx, b.ID, 3, base)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, other.ID, "Max attempts exceeded", base))

	pending, err := repo.ListPendingByEmail(ctx, "foo@bar.com", 50)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].SubmissionID)
	assert.Equal(t, "C", pending[1].SubmissionID)

	all, err := repo.ListByEmail(ctx, "foo@bar.com", 50)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].SubmissionID, "newest first")

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, SubmissionCounts{Total: 4, Pending: 2, Associated: 1, Failed: 1}, *counts)
}
