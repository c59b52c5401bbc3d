package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/pkg/pubsub"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/policy"
	"github.com/geolyze/geolyze_server/internal/repository"
	"github.com/geolyze/geolyze_server/internal/testutil"
)

func setupJobService(t *testing.T) (*gorm.DB, *JobService, *statuscache.Cache) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	rdb := testutil.SetupTestRedis(t)
	cache := statuscache.NewCache(rdb)
	svc := NewJobService(repository.NewJobRepository(db), cache, pubsub.NewPublisher(rdb))
	return db, svc, cache
}

func ownerCaller(userID string) policy.Caller {
	return policy.Caller{UserID: userID, Role: policy.RoleUser}
}

func TestJobService_GetEnforcesOwnership(t *testing.T) {
	db, svc, _ := setupJobService(t)

	alice := testutil.TestUser(t, db)
	bob := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, alice.ID)

	got, err := svc.Get(ownerCaller(alice.ID), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = svc.Get(ownerCaller(bob.ID), job.ID)
	assert.ErrorIs(t, err, ErrJobPermission)

	_, err = svc.Get(policy.Service(), job.ID)
	assert.NoError(t, err)

	_, err = svc.Get(ownerCaller(alice.ID), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_CreateRejectsNonService(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)

	job := &model.Job{ID: "job-1", UserID: user.ID, GeoID: "GSE1"}
	err := svc.Create(context.Background(), ownerCaller(user.ID), job)
	assert.ErrorIs(t, err, ErrJobPermission)

	err = svc.Create(context.Background(), policy.Service(), job)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)
}

func TestJobService_UpdateStatusForwardOnly(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, user.ID)
	ctx := context.Background()

	got, err := svc.UpdateStatus(ctx, policy.Service(), job.ID, model.StatusAnalyzing, 60, "Running DE analysis")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzing, got.Status)
	assert.Equal(t, 60, got.Progress)

	// Backward move is rejected
	_, err = svc.UpdateStatus(ctx, policy.Service(), job.ID, model.StatusDownloading, 10, "")
	assert.ErrorIs(t, err, ErrStatusRegression)

	// Terminal states never go through UpdateStatus
	_, err = svc.UpdateStatus(ctx, policy.Service(), job.ID, model.StatusCompleted, 100, "")
	assert.ErrorIs(t, err, ErrInvalidJobStatus)
	_, err = svc.UpdateStatus(ctx, policy.Service(), job.ID, model.StatusFailed, 0, "")
	assert.ErrorIs(t, err, ErrInvalidJobStatus)

	_, err = svc.UpdateStatus(ctx, policy.Service(), job.ID, "archived", 0, "")
	assert.ErrorIs(t, err, ErrInvalidJobStatus)

	// Owners cannot write
	_, err = svc.UpdateStatus(ctx, ownerCaller(user.ID), job.ID, model.StatusAnalyzing, 70, "")
	assert.ErrorIs(t, err, ErrJobPermission)
}

func TestJobService_SaveResultsCompletes(t *testing.T) {
	db, svc, cache := setupJobService(t)
	user := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, user.ID, testutil.WithStatus(model.StatusAnalyzing))
	ctx := context.Background()

	payload := model.JSONMap{"plots": map[string]interface{}{"umap": map[string]interface{}{}}}
	got, err := svc.SaveResults(ctx, policy.Service(), job.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)
	firstCompleted := *got.CompletedAt

	// Cache reflects the terminal state
	entry := cache.Get(ctx, job.ID)
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusCompleted, entry.Status)

	// Terminal jobs accept no further writes, so completed_at is final
	_, err = svc.SaveResults(ctx, policy.Service(), job.ID, payload)
	assert.ErrorIs(t, err, ErrJobTerminal)
	_, err = svc.SaveError(ctx, policy.Service(), job.ID, "too late")
	assert.ErrorIs(t, err, ErrJobTerminal)
	_, err = svc.UpdateStatus(ctx, policy.Service(), job.ID, model.StatusAnalyzing, 10, "")
	assert.ErrorIs(t, err, ErrJobTerminal)

	stored, err := svc.Get(policy.Service(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.WithinDuration(t, firstCompleted, *stored.CompletedAt, time.Second)
	assert.NotEmpty(t, stored.ResultData)
	assert.Empty(t, stored.Error)
}

func TestJobService_SaveResultsRequiresPayload(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, user.ID)

	_, err := svc.SaveResults(context.Background(), policy.Service(), job.ID, nil)
	assert.ErrorIs(t, err, ErrNoResultData)
}

func TestJobService_SaveErrorFromAnyNonTerminal(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)
	ctx := context.Background()

	for _, from := range []string{model.StatusPending, model.StatusDownloading, model.StatusAnalyzing} {
		job := testutil.TestJob(t, db, user.ID, testutil.WithStatus(from))
		got, err := svc.SaveError(ctx, policy.Service(), job.ID, "Dataset not found in GEO")
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, "Dataset not found in GEO", got.Error)
		require.NotNil(t, got.CompletedAt)
		assert.Empty(t, got.ResultData)
	}
}

func TestJobService_GetResults(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)

	running := testutil.TestJob(t, db, user.ID, testutil.WithStatus(model.StatusAnalyzing))
	_, err := svc.GetResults(ownerCaller(user.ID), running.ID)
	assert.ErrorIs(t, err, ErrJobNotCompleted)

	done := testutil.TestJob(t, db, user.ID,
		testutil.WithResultData(model.JSONMap{"summary": map[string]interface{}{"n_samples": float64(12)}}))
	got, err := svc.GetResults(ownerCaller(user.ID), done.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ResultData)
}

func TestJobService_StatusSnapshotPrefersCache(t *testing.T) {
	db, svc, cache := setupJobService(t)
	user := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, user.ID, testutil.WithStatus(model.StatusDownloading))
	ctx := context.Background()

	// No cache entry: falls back to the row
	_, entry, err := svc.StatusSnapshot(ctx, ownerCaller(user.ID), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDownloading, entry.Status)

	// Cached entry wins over the row
	cache.Set(ctx, job.ID, &statuscache.Entry{Status: model.StatusAnalyzing, Progress: 55, Message: "Clustering"})
	_, entry, err = svc.StatusSnapshot(ctx, ownerCaller(user.ID), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzing, entry.Status)
	assert.Equal(t, 55, entry.Progress)
}

func TestJobService_SetMetadata(t *testing.T) {
	db, svc, _ := setupJobService(t)
	user := testutil.TestUser(t, db)
	job := testutil.TestJob(t, db, user.ID)
	ctx := context.Background()

	meta := model.JSONMap{"title": "Aging study", "organism": "Homo sapiens"}
	got, err := svc.SetMetadata(ctx, policy.Service(), job.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, "Aging study", got.Metadata["title"])

	_, err = svc.SetMetadata(ctx, ownerCaller(user.ID), job.ID, meta)
	assert.ErrorIs(t, err, ErrJobPermission)
}
