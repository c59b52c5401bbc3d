package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/api/middleware"
	"github.com/geolyze/geolyze_server/internal/model/dto"
	"github.com/geolyze/geolyze_server/internal/pkg/response"
	"github.com/geolyze/geolyze_server/internal/service"
	"github.com/geolyze/geolyze_server/internal/upstream"
)

// AnalyzeHandler the submission gateway: validates accessions,
// forwards to the analysis engine with the caller's token, and serves
// status/result reads from the local store.
type AnalyzeHandler struct {
	upstream     *upstream.Client
	jobService   *service.JobService
	quotaService *service.QuotaService
	pollInterval int
}

func NewAnalyzeHandler(
	upstreamClient *upstream.Client,
	jobService *service.JobService,
	quotaService *service.QuotaService,
	cfg *config.Config,
) *AnalyzeHandler {
	pollInterval := cfg.Poll.IntervalSeconds
	if pollInterval <= 0 {
		pollInterval = 3
	}
	return &AnalyzeHandler{
		upstream:     upstreamClient,
		jobService:   jobService,
		quotaService: quotaService,
		pollInterval: pollInterval,
	}
}

// Submit POST /api/analyze
// Validation happens before any network call; exactly one upstream
// submission per valid request, no retries.
func (h *AnalyzeHandler) Submit(c *gin.Context) {
	_, ok := middleware.GetCaller(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "geo_id is required")
		return
	}

	geoID, err := dto.NormalizeGeoID(req.GeoID)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.quotaService.CheckQuota(userID); err != nil {
		if errors.Is(err, service.ErrQuotaExceeded) {
			response.QuotaError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	job, err := h.upstream.Submit(c.Request.Context(), middleware.GetBearerToken(c), geoID)
	if err != nil {
		h.upstreamError(c, err)
		return
	}

	response.OK(c, job)
}

// Status GET /api/analyze/status?jobId=
// Served cache-first from the local store; the poller hits this every
// few seconds per running job.
func (h *AnalyzeHandler) Status(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	jobID := c.Query("jobId")
	if jobID == "" {
		response.ParamError(c, "jobId query parameter is required")
		return
	}

	job, entry, err := h.jobService.StatusSnapshot(c.Request.Context(), caller, jobID)
	if err != nil {
		h.jobError(c, err)
		return
	}

	response.OK(c, gin.H{
		"job_id":       job.ID,
		"geo_id":       job.GeoID,
		"status":       entry.Status,
		"progress":     entry.Progress,
		"message":      entry.Message,
		"error":        job.Error,
		"metadata":     job.Metadata,
		"created_at":   job.CreatedAt,
		"completed_at": job.CompletedAt,
		// Clients schedule their next status fetch this many seconds out
		"poll_interval": h.pollInterval,
	})
}

// Results GET /api/analyze/results?jobId=
func (h *AnalyzeHandler) Results(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	jobID := c.Query("jobId")
	if jobID == "" {
		response.ParamError(c, "jobId query parameter is required")
		return
	}

	job, err := h.jobService.GetResults(caller, jobID)
	if err != nil {
		h.jobError(c, err)
		return
	}

	response.OK(c, gin.H{
		"job_id":      job.ID,
		"geo_id":      job.GeoID,
		"metadata":    job.Metadata,
		"result_data": job.ResultData,
	})
}

// ListJobs GET /api/jobs
func (h *AnalyzeHandler) ListJobs(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	jobs, err := h.jobService.List(caller)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.OK(c, gin.H{"jobs": jobs})
}

// Quota GET /api/user/quota
func (h *AnalyzeHandler) Quota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quotaService.GetQuotaInfo(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.OK(c, info)
}

// upstreamError maps engine failures: transport errors become 502,
// engine rejections pass through with their status and detail.
func (h *AnalyzeHandler) upstreamError(c *gin.Context, err error) {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		response.Error(c, statusErr.Code, statusErr.Detail)
	case errors.Is(err, upstream.ErrUnavailable):
		response.GatewayError(c, "")
	default:
		response.GatewayError(c, "")
	}
}

func (h *AnalyzeHandler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFoundError(c, "job not found")
	case errors.Is(err, service.ErrJobPermission):
		response.PermissionError(c, "")
	case errors.Is(err, service.ErrJobNotCompleted):
		response.ConflictError(c, "job is not completed yet")
	case errors.Is(err, service.ErrNoResultData):
		response.NotFoundError(c, "result data not available")
	default:
		response.ServerError(c, "")
	}
}
