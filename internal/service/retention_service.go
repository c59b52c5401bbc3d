package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/repository"
)

// Archiver where expired jobs get exported before deletion. Satisfied
// by the OSS client; nil disables archiving.
type Archiver interface {
	ArchiveJob(userID, jobID string, data []byte) (string, error)
}

// RetentionService removes terminal jobs past the retention window.
// Each job is archived (when configured), its cached status dropped,
// and the row deleted.
type RetentionService struct {
	jobRepo  *repository.JobRepository
	cache    *statuscache.Cache
	archiver Archiver
	cfg      *config.RetentionConfig
}

func NewRetentionService(
	jobRepo *repository.JobRepository,
	cache *statuscache.Cache,
	archiver Archiver,
	cfg *config.RetentionConfig,
) *RetentionService {
	return &RetentionService{
		jobRepo:  jobRepo,
		cache:    cache,
		archiver: archiver,
		cfg:      cfg,
	}
}

const sweepBatchSize = 200

// Sweep processes one batch of expired jobs. Returns how many rows
// were removed. dryRun reports without touching anything.
func (s *RetentionService) Sweep(ctx context.Context, dryRun bool) (int, error) {
	days := s.cfg.Days
	if days <= 0 {
		return 0, nil // retention disabled
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	jobs, err := s.jobRepo.ListTerminalBefore(cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}

	removed := 0
	for _, job := range jobs {
		if dryRun {
			log.Printf("retention: would remove job %s (%s, completed %v)", job.ID, job.Status, job.CompletedAt)
			removed++
			continue
		}

		if s.cfg.ArchiveToOSS && s.archiver != nil {
			data, err := json.Marshal(job)
			if err != nil {
				return removed, fmt.Errorf("failed to export job %s: %w", job.ID, err)
			}
			if _, err := s.archiver.ArchiveJob(job.UserID, job.ID, data); err != nil {
				// Keep the row; a failed archive must not lose data
				log.Printf("retention: archive failed for job %s: %v", job.ID, err)
				continue
			}
		}

		if s.cache != nil {
			s.cache.Delete(ctx, job.ID)
		}
		if err := s.jobRepo.Delete(job.ID); err != nil {
			return removed, fmt.Errorf("failed to delete job %s: %w", job.ID, err)
		}
		removed++
	}

	if removed > 0 {
		log.Printf("retention: removed %d expired jobs (cutoff %s)", removed, cutoff.Format(time.RFC3339))
	}
	return removed, nil
}

// CleanupAge how old a terminal job must be before the sweep takes it.
func (s *RetentionService) CleanupAge() time.Duration {
	return time.Duration(s.cfg.Days) * 24 * time.Hour
}
