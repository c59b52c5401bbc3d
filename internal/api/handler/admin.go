package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/model/dto"
	"github.com/geolyze/geolyze_server/internal/pkg/response"
	"github.com/geolyze/geolyze_server/internal/policy"
	"github.com/geolyze/geolyze_server/internal/service"
)

// AdminHandler the elevated /internal surface. The analysis engine
// records job rows and progress here; the hosted auth and billing
// providers deliver their hooks here. All routes sit behind the
// service-key middleware.
type AdminHandler struct {
	jobService     *service.JobService
	accountService *service.AccountService
}

func NewAdminHandler(
	jobService *service.JobService,
	accountService *service.AccountService,
) *AdminHandler {
	return &AdminHandler{
		jobService:     jobService,
		accountService: accountService,
	}
}

// CreateIdentity POST /internal/identities
// The auth provider's user-created hook. A failure here fails the
// identity creation upstream, so the error is surfaced, never logged
// away.
func (h *AdminHandler) CreateIdentity(c *gin.Context) {
	var req dto.IdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	user, err := h.accountService.ProvisionUser(req.ID, req.Email, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			response.ConflictError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.OK(c, user)
}

// UpsertSubscription POST /internal/subscriptions
// The billing provider's subscription hook. Plan propagation onto the
// user happens inside the same transaction as the subscription write.
func (h *AdminHandler) UpsertSubscription(c *gin.Context) {
	var req dto.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	change := &service.SubscriptionChange{
		UserID:                 req.UserID,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		Plan:                   req.Plan,
		Status:                 req.Status,
	}
	if req.CurrentPeriodEnd != "" {
		t, err := time.Parse(time.RFC3339, req.CurrentPeriodEnd)
		if err != nil {
			response.ParamError(c, "current_period_end must be RFC3339")
			return
		}
		change.CurrentPeriodEnd = &t
	}

	sub, err := h.accountService.ApplySubscriptionChange(change)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPlan), errors.Is(err, service.ErrInvalidSubStatus):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.OK(c, sub)
}

// CreateJob POST /internal/jobs
// The engine mirrors the job row here right after accepting a
// submission.
func (h *AdminHandler) CreateJob(c *gin.Context) {
	var job model.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if job.ID == "" || job.UserID == "" || job.GeoID == "" {
		response.ParamError(c, "id, user_id and geo_id are required")
		return
	}

	if err := h.jobService.Create(c.Request.Context(), policy.Service(), &job); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, &job)
}

// UpdateJobStatus PATCH /internal/jobs/:id/status
func (h *AdminHandler) UpdateJobStatus(c *gin.Context) {
	var req dto.JobStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.UpdateStatus(c.Request.Context(), policy.Service(),
		c.Param("id"), req.Status, req.Progress, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, job)
}

// SaveJobResults PUT /internal/jobs/:id/results
func (h *AdminHandler) SaveJobResults(c *gin.Context) {
	var req dto.JobResults
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.SaveResults(c.Request.Context(), policy.Service(),
		c.Param("id"), model.JSONMap(req.ResultData))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, job)
}

// SaveJobError PUT /internal/jobs/:id/error
func (h *AdminHandler) SaveJobError(c *gin.Context) {
	var req dto.JobError
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.SaveError(c.Request.Context(), policy.Service(),
		c.Param("id"), req.Error)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, job)
}

// SetJobMetadata PATCH /internal/jobs/:id/metadata
func (h *AdminHandler) SetJobMetadata(c *gin.Context) {
	var req dto.JobMetadata
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.SetMetadata(c.Request.Context(), policy.Service(),
		c.Param("id"), model.JSONMap(req.Metadata))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, job)
}

func (h *AdminHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFoundError(c, "job not found")
	case errors.Is(err, service.ErrJobPermission):
		response.PermissionError(c, "")
	case errors.Is(err, service.ErrInvalidJobStatus),
		errors.Is(err, service.ErrNoResultData):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrStatusRegression),
		errors.Is(err, service.ErrJobTerminal):
		response.ConflictError(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}
