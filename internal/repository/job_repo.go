package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

func (r *JobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) ListByUserID(userID string) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

// UpdateFields partial update of a job row.
func (r *JobRepository) UpdateFields(id string, fields map[string]interface{}) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Updates(fields).Error
}

// CountCreatedSince jobs a user submitted on or after the cutoff.
// Drives the monthly quota check.
func (r *JobRepository) CountCreatedSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Job{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// ListTerminalBefore terminal jobs whose completed_at is older than the
// cutoff, for the retention sweep.
func (r *JobRepository) ListTerminalBefore(cutoff time.Time, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	err := r.db.Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?",
		[]string{model.StatusCompleted, model.StatusFailed}, cutoff).
		Order("completed_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Job{}).Error
}
