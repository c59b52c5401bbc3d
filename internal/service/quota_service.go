package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/repository"
)

var ErrQuotaExceeded = errors.New("monthly analysis limit reached")

// QuotaService enforces the per-plan monthly submission limit. Usage is
// the count of jobs created in the current calendar month, so there is
// no counter to reset or refund.
type QuotaService struct {
	userRepo *repository.UserRepository
	jobRepo  *repository.JobRepository
	cfg      *config.Config
}

func NewQuotaService(
	userRepo *repository.UserRepository,
	jobRepo *repository.JobRepository,
	cfg *config.Config,
) *QuotaService {
	return &QuotaService{
		userRepo: userRepo,
		jobRepo:  jobRepo,
		cfg:      cfg,
	}
}

// CheckQuota returns ErrQuotaExceeded when the user's plan limit for
// the current calendar month is used up.
func (s *QuotaService) CheckQuota(userID string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	limit := s.monthlyLimit(user.Plan)
	if limit <= 0 {
		return nil // unlimited
	}

	used, err := s.jobRepo.CountCreatedSince(userID, monthStart(time.Now().UTC()))
	if err != nil {
		return err
	}
	if used >= int64(limit) {
		return fmt.Errorf("%w (%d/%d). Upgrade to Pro for unlimited analyses", ErrQuotaExceeded, limit, limit)
	}
	return nil
}

// QuotaInfo current usage for the profile page.
type QuotaInfo struct {
	Plan         string `json:"plan"`
	MonthlyLimit int    `json:"monthly_limit"` // 0 = unlimited
	MonthlyUsed  int64  `json:"monthly_used"`
}

func (s *QuotaService) GetQuotaInfo(userID string) (*QuotaInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	used, err := s.jobRepo.CountCreatedSince(userID, monthStart(time.Now().UTC()))
	if err != nil {
		return nil, err
	}

	return &QuotaInfo{
		Plan:         user.Plan,
		MonthlyLimit: s.monthlyLimit(user.Plan),
		MonthlyUsed:  used,
	}, nil
}

func (s *QuotaService) monthlyLimit(plan string) int {
	p, ok := s.cfg.Subscription.Plans[plan]
	if !ok {
		p, ok = s.cfg.Subscription.Plans["free"]
		if !ok {
			return 3
		}
	}
	return p.MonthlyLimit
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
