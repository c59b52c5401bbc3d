package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/api/middleware"
	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/pkg/jwt"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/repository"
	"github.com/geolyze/geolyze_server/internal/service"
	"github.com/geolyze/geolyze_server/internal/testutil"
	"github.com/geolyze/geolyze_server/internal/upstream"
)

const testSecret = "test-secret-key"

type gatewayEnv struct {
	db            *gorm.DB
	cache         *statuscache.Cache
	router        *gin.Engine
	engine        *httptest.Server
	upstreamCalls *int64
}

// setupGateway wires the authenticated /api surface against a stub
// engine and real sqlite/miniredis-backed services.
func setupGateway(t *testing.T, engineHandler http.HandlerFunc) *gatewayEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb := testutil.SetupTestRedis(t)
	cache := statuscache.NewCache(rdb)

	var calls int64
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if engineHandler != nil {
			engineHandler(w, r)
			return
		}
		json.NewEncoder(w).Encode(upstream.Job{ID: "job-1", Status: "pending"})
	}))
	t.Cleanup(engine.Close)

	jobRepo := repository.NewJobRepository(db)
	userRepo := repository.NewUserRepository(db)

	cfg := &config.Config{
		Subscription: config.SubscriptionConfig{
			Plans: map[string]config.PlanConfig{
				model.PlanFree: {MonthlyLimit: 3},
				model.PlanPro:  {MonthlyLimit: 0},
			},
		},
		Upstream: config.UpstreamConfig{BaseURL: engine.URL, TimeoutSeconds: 5},
		Poll:     config.PollConfig{IntervalSeconds: 3},
	}

	h := NewAnalyzeHandler(
		upstream.NewClient(&cfg.Upstream),
		service.NewJobService(jobRepo, cache, nil),
		service.NewQuotaService(userRepo, jobRepo, cfg),
		cfg,
	)

	r := gin.New()
	api := r.Group("/api", middleware.Auth(testSecret))
	api.POST("/analyze", h.Submit)
	api.GET("/analyze/status", h.Status)
	api.GET("/analyze/results", h.Results)
	api.GET("/jobs", h.ListJobs)
	api.GET("/user/quota", h.Quota)

	return &gatewayEnv{db: db, cache: cache, router: r, engine: engine, upstreamCalls: &calls}
}

func (e *gatewayEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, userID+"@example.com", testSecret, 1)
	require.NoError(t, err)
	return token
}

func TestSubmit_ForwardsNormalizedAccession(t *testing.T) {
	var gotGeoID string
	env := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotGeoID = body["geo_id"]
		json.NewEncoder(w).Encode(upstream.Job{ID: "job-1", GeoID: body["geo_id"], Status: "pending"})
	})
	user := testutil.TestUser(t, env.db)

	w := env.request(t, http.MethodPost, "/api/analyze", userToken(t, user.ID),
		gin.H{"geo_id": "  gse12345  "})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "GSE12345", gotGeoID)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestSubmit_InvalidAccessionNeverReachesEngine(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	token := userToken(t, user.ID)

	for _, geoID := range []string{"", "GSE", "12345", "GDS12345", "GSE 12345"} {
		w := env.request(t, http.MethodPost, "/api/analyze", token, gin.H{"geo_id": geoID})
		assert.Equal(t, http.StatusBadRequest, w.Code, "geo_id %q", geoID)
	}
	assert.Equal(t, int64(0), atomic.LoadInt64(env.upstreamCalls))
}

func TestSubmit_Unauthenticated(t *testing.T) {
	env := setupGateway(t, nil)

	w := env.request(t, http.MethodPost, "/api/analyze", "", gin.H{"geo_id": "GSE12345"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int64(0), atomic.LoadInt64(env.upstreamCalls))
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	for i := 0; i < 3; i++ {
		testutil.TestJob(t, env.db, user.ID)
	}

	w := env.request(t, http.MethodPost, "/api/analyze", userToken(t, user.ID),
		gin.H{"geo_id": "GSE12345"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Upgrade to Pro")
	assert.Equal(t, int64(0), atomic.LoadInt64(env.upstreamCalls))
}

func TestSubmit_EngineUnreachableIs502(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)

	// Nothing is listening on the engine address anymore
	env.engine.Close()

	w := env.request(t, http.MethodPost, "/api/analyze", userToken(t, user.ID),
		gin.H{"geo_id": "GSE12345"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestSubmit_EngineRejectionPassesThrough(t *testing.T) {
	env := setupGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(gin.H{"detail": "Dataset GSE99999 is not a valid expression dataset"})
	})
	user := testutil.TestUser(t, env.db)

	w := env.request(t, http.MethodPost, "/api/analyze", userToken(t, user.ID),
		gin.H{"geo_id": "GSE99999"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "not a valid expression dataset")
}

func TestStatus_CacheFirstWithRowFallback(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	job := testutil.TestJob(t, env.db, user.ID, testutil.WithStatus(model.StatusDownloading))
	token := userToken(t, user.ID)

	w := env.request(t, http.MethodGet, "/api/analyze/status?jobId="+job.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.StatusDownloading)
	assert.Contains(t, w.Body.String(), `"poll_interval":3`)

	env.cache.Set(context.Background(), job.ID, &statuscache.Entry{Status: model.StatusAnalyzing, Progress: 80})
	w = env.request(t, http.MethodGet, "/api/analyze/status?jobId="+job.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.StatusAnalyzing)
}

func TestStatus_OtherUsersJobIsForbidden(t *testing.T) {
	env := setupGateway(t, nil)
	alice := testutil.TestUser(t, env.db)
	bob := testutil.TestUser(t, env.db)
	job := testutil.TestJob(t, env.db, alice.ID)

	w := env.request(t, http.MethodGet, "/api/analyze/status?jobId="+job.ID, userToken(t, bob.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStatus_MissingParamAndUnknownJob(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	token := userToken(t, user.ID)

	w := env.request(t, http.MethodGet, "/api/analyze/status", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.request(t, http.MethodGet, "/api/analyze/status?jobId=missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResults_LifecycleGating(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	token := userToken(t, user.ID)

	running := testutil.TestJob(t, env.db, user.ID, testutil.WithStatus(model.StatusAnalyzing))
	w := env.request(t, http.MethodGet, "/api/analyze/results?jobId="+running.ID, token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	done := testutil.TestJob(t, env.db, user.ID, testutil.WithResultData(model.JSONMap{
		"plots": map[string]interface{}{"umap": map[string]interface{}{"data": []interface{}{}}},
	}))
	w = env.request(t, http.MethodGet, "/api/analyze/results?jobId="+done.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "result_data")
}

func TestListJobsAndQuota(t *testing.T) {
	env := setupGateway(t, nil)
	user := testutil.TestUser(t, env.db)
	testutil.TestJob(t, env.db, user.ID)
	testutil.TestJob(t, env.db, user.ID)
	token := userToken(t, user.ID)

	w := env.request(t, http.MethodGet, "/api/jobs", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var jobsBody struct {
		Jobs []model.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobsBody))
	assert.Len(t, jobsBody.Jobs, 2)

	w = env.request(t, http.MethodGet, "/api/user/quota", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var quota service.QuotaInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quota))
	assert.Equal(t, model.PlanFree, quota.Plan)
	assert.Equal(t, 3, quota.MonthlyLimit)
	assert.Equal(t, int64(2), quota.MonthlyUsed)
}
