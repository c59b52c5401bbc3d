package service

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/pkg/pubsub"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/policy"
	"github.com/geolyze/geolyze_server/internal/repository"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobPermission    = errors.New("no access to this job")
	ErrInvalidJobStatus = errors.New("unknown job status")
	ErrStatusRegression = errors.New("job status cannot move backward")
	ErrJobTerminal      = errors.New("job already reached a terminal state")
	ErrJobNotCompleted  = errors.New("job is not completed yet")
	ErrNoResultData     = errors.New("result data not available")
)

// JobService the single write path for job rows. Owners are read-only;
// every mutation comes from a service-role caller (the analysis
// engine) and is checked against the lifecycle invariants:
//
//   - status only moves forward on pending -> downloading -> analyzing
//     -> completed; failed is reachable from any non-terminal status
//   - result_data is set exactly when the job completes
//   - error is set exactly when the job fails
//   - completed_at is written once, on the first terminal transition
//
// Terminal states are reached only through SaveResults and SaveError,
// which keeps the result/error presence rules tied to the transition
// itself.
type JobService struct {
	jobRepo   *repository.JobRepository
	cache     *statuscache.Cache
	publisher *pubsub.Publisher
}

func NewJobService(
	jobRepo *repository.JobRepository,
	cache *statuscache.Cache,
	publisher *pubsub.Publisher,
) *JobService {
	return &JobService{
		jobRepo:   jobRepo,
		cache:     cache,
		publisher: publisher,
	}
}

// Get fetches one job, enforcing row access.
func (s *JobService) Get(caller policy.Caller, jobID string) (*model.Job, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !policy.CanRead(caller, job) {
		return nil, ErrJobPermission
	}
	return job, nil
}

// List returns the caller's own jobs, newest first.
func (s *JobService) List(caller policy.Caller) ([]*model.Job, error) {
	return s.jobRepo.ListByUserID(caller.UserID)
}

// GetResults returns a completed job with its result payload.
func (s *JobService) GetResults(caller policy.Caller, jobID string) (*model.Job, error) {
	job, err := s.Get(caller, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, ErrJobNotCompleted
	}
	if len(job.ResultData) == 0 {
		return nil, ErrNoResultData
	}
	return job, nil
}

// StatusSnapshot returns the freshest status view: the Redis cache
// first (more current while a run is in flight), the row as fallback.
func (s *JobService) StatusSnapshot(ctx context.Context, caller policy.Caller, jobID string) (*model.Job, *statuscache.Entry, error) {
	job, err := s.Get(caller, jobID)
	if err != nil {
		return nil, nil, err
	}

	entry := s.cache.Get(ctx, jobID)
	if entry == nil {
		entry = &statuscache.Entry{
			Status:   job.Status,
			Progress: job.Progress,
			Message:  job.Message,
		}
	}
	return job, entry, nil
}

// Create inserts the row for a job the analysis engine accepted.
func (s *JobService) Create(ctx context.Context, caller policy.Caller, job *model.Job) error {
	if !policy.CanInsert(caller, job) {
		return ErrJobPermission
	}
	if job.Status == "" {
		job.Status = model.StatusPending
	}
	if !model.ValidStatus(job.Status) {
		return ErrInvalidJobStatus
	}
	if err := s.jobRepo.Create(job); err != nil {
		return err
	}
	s.broadcast(ctx, job)
	return nil
}

// UpdateStatus advances a job along the non-terminal part of the
// lifecycle. Terminal transitions go through SaveResults / SaveError.
func (s *JobService) UpdateStatus(ctx context.Context, caller policy.Caller, jobID, status string, progress int, message string) (*model.Job, error) {
	job, err := s.writable(caller, jobID)
	if err != nil {
		return nil, err
	}

	newIdx := model.StatusIndex(status)
	if newIdx < 0 || status == model.StatusCompleted {
		return nil, ErrInvalidJobStatus
	}
	if newIdx < model.StatusIndex(job.Status) {
		return nil, ErrStatusRegression
	}

	fields := map[string]interface{}{
		"status":   status,
		"progress": progress,
		"message":  message,
	}
	if err := s.jobRepo.UpdateFields(jobID, fields); err != nil {
		return nil, err
	}
	job.Status = status
	job.Progress = progress
	job.Message = message

	s.broadcast(ctx, job)
	return job, nil
}

// SaveResults stores the result payload and completes the job.
// completed_at is stamped here, once.
func (s *JobService) SaveResults(ctx context.Context, caller policy.Caller, jobID string, resultData model.JSONMap) (*model.Job, error) {
	job, err := s.writable(caller, jobID)
	if err != nil {
		return nil, err
	}
	if len(resultData) == 0 {
		return nil, ErrNoResultData
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":       model.StatusCompleted,
		"progress":     100,
		"message":      "Analysis complete",
		"result_data":  resultData,
		"completed_at": now,
	}
	if err := s.jobRepo.UpdateFields(jobID, fields); err != nil {
		return nil, err
	}
	job.Status = model.StatusCompleted
	job.Progress = 100
	job.Message = "Analysis complete"
	job.ResultData = resultData
	job.CompletedAt = &now

	s.broadcast(ctx, job)
	return job, nil
}

// SaveError records the failure reason and fails the job.
func (s *JobService) SaveError(ctx context.Context, caller policy.Caller, jobID, errMsg string) (*model.Job, error) {
	job, err := s.writable(caller, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":       model.StatusFailed,
		"message":      errMsg,
		"error":        errMsg,
		"completed_at": now,
	}
	if err := s.jobRepo.UpdateFields(jobID, fields); err != nil {
		return nil, err
	}
	job.Status = model.StatusFailed
	job.Message = errMsg
	job.Error = errMsg
	job.CompletedAt = &now

	s.broadcast(ctx, job)
	return job, nil
}

// SetMetadata attaches descriptive attributes (title, organism, sample
// count, ...) as soon as the engine knows them, independent of status.
func (s *JobService) SetMetadata(ctx context.Context, caller policy.Caller, jobID string, metadata model.JSONMap) (*model.Job, error) {
	job, err := s.Get(caller, jobID)
	if err != nil {
		return nil, err
	}
	if !policy.CanUpdate(caller, job) {
		return nil, ErrJobPermission
	}

	if err := s.jobRepo.UpdateFields(jobID, map[string]interface{}{"metadata": metadata}); err != nil {
		return nil, err
	}
	job.Metadata = metadata
	return job, nil
}

// writable loads a job for a status-changing write: service role only,
// and never out of a terminal state.
func (s *JobService) writable(caller policy.Caller, jobID string) (*model.Job, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !policy.CanUpdate(caller, job) {
		return nil, ErrJobPermission
	}
	if model.IsTerminalStatus(job.Status) {
		return nil, ErrJobTerminal
	}
	return job, nil
}

// broadcast refreshes the status cache and pushes a progress message.
// Both are best-effort; the row is already durable.
func (s *JobService) broadcast(ctx context.Context, job *model.Job) {
	if s.cache != nil {
		s.cache.Set(ctx, job.ID, &statuscache.Entry{
			Status:   job.Status,
			Progress: job.Progress,
			Message:  job.Message,
		})
	}
	if s.publisher != nil {
		_ = s.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
			UserID:   job.UserID,
			JobID:    job.ID,
			GeoID:    job.GeoID,
			Status:   job.Status,
			Progress: job.Progress,
			Message:  job.Message,
			Error:    job.Error,
		})
	}
}
