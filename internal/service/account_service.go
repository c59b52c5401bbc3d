package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/internal/model"
	"github.com/geolyze/geolyze_server/internal/repository"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already provisioned")
	ErrInvalidPlan      = errors.New("invalid subscription plan")
	ErrInvalidSubStatus = errors.New("invalid subscription status")
)

// AccountService owns the reactive rules around users and
// subscriptions: new-identity provisioning and the subscription-status
// to user-plan sync. Both run inside the same transaction as the
// originating write, so a reader can never observe a subscription
// change without the matching plan change.
type AccountService struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
}

func NewAccountService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
) *AccountService {
	return &AccountService{
		db:       db,
		userRepo: userRepo,
		subRepo:  subRepo,
	}
}

// ProvisionUser creates the User row for a newly created authenticated
// identity. Name may be empty. An error here must fail the identity
// creation at the caller, so it is never swallowed.
func (s *AccountService) ProvisionUser(id, email, name string) (*model.User, error) {
	user := &model.User{
		ID:    id,
		Email: email,
		Name:  name,
		Plan:  model.PlanFree,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		exists, err := s.userRepo.WithTx(tx).ExistsByID(id)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserExists
		}
		return s.userRepo.WithTx(tx).Create(user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SubscriptionChange an insert or update reported by the billing
// provider.
type SubscriptionChange struct {
	UserID                 string
	ExternalSubscriptionID string
	Plan                   string
	Status                 string
	CurrentPeriodEnd       *time.Time
}

// ApplySubscriptionChange upserts the subscription row and propagates
// the derived plan onto the user in the same transaction:
//
//	active, trialing -> user.plan = subscription.plan
//	canceled         -> user.plan = free
//	past_due, paused -> plan unchanged (grace; the row still records
//	                    the provider status)
func (s *AccountService) ApplySubscriptionChange(change *SubscriptionChange) (*model.Subscription, error) {
	if change.Plan != model.PlanPro && change.Plan != model.PlanEnterprise {
		return nil, ErrInvalidPlan
	}
	switch change.Status {
	case model.SubStatusActive, model.SubStatusTrialing,
		model.SubStatusPastDue, model.SubStatusPaused, model.SubStatusCanceled:
	default:
		return nil, ErrInvalidSubStatus
	}

	var sub *model.Subscription
	err := s.db.Transaction(func(tx *gorm.DB) error {
		subRepo := s.subRepo.WithTx(tx)
		userRepo := s.userRepo.WithTx(tx)

		existing, err := subRepo.GetByExternalID(change.ExternalSubscriptionID)
		switch {
		case err == nil:
			existing.Plan = change.Plan
			existing.Status = change.Status
			existing.CurrentPeriodEnd = change.CurrentPeriodEnd
			if err := subRepo.Update(existing); err != nil {
				return err
			}
			sub = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			exists, err := userRepo.ExistsByID(change.UserID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrUserNotFound
			}
			sub = &model.Subscription{
				ID:                     uuid.NewString(),
				UserID:                 change.UserID,
				ExternalSubscriptionID: change.ExternalSubscriptionID,
				Plan:                   change.Plan,
				Status:                 change.Status,
				CurrentPeriodEnd:       change.CurrentPeriodEnd,
			}
			if err := subRepo.Create(sub); err != nil {
				return err
			}
		default:
			return err
		}

		// Plan sync, same transaction as the subscription write
		switch sub.Status {
		case model.SubStatusActive, model.SubStatusTrialing:
			return userRepo.UpdatePlan(sub.UserID, sub.Plan)
		case model.SubStatusCanceled:
			return userRepo.UpdatePlan(sub.UserID, model.PlanFree)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
