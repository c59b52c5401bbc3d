package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/geolyze/geolyze_server/internal/model"
)

// TestUser creates a user row.
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{
		ID:    uuid.NewString(),
		Email: fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		Name:  "Test User",
		Plan:  model.PlanFree,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithPlan sets the user's plan.
func WithPlan(plan string) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
	}
}

// WithEmail sets the email.
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// TestJob creates a job row owned by userID.
func TestJob(t *testing.T, db *gorm.DB, userID string, opts ...func(*model.Job)) *model.Job {
	t.Helper()

	job := &model.Job{
		ID:     uuid.NewString(),
		UserID: userID,
		GeoID:  "GSE12345",
		Status: model.StatusPending,
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithStatus sets the job status.
func WithStatus(status string) func(*model.Job) {
	return func(j *model.Job) {
		j.Status = status
	}
}

// WithGeoID sets the accession.
func WithGeoID(geoID string) func(*model.Job) {
	return func(j *model.Job) {
		j.GeoID = geoID
	}
}

// WithResultData marks the job completed with the given payload.
func WithResultData(data model.JSONMap) func(*model.Job) {
	return func(j *model.Job) {
		j.Status = model.StatusCompleted
		j.ResultData = data
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
}

// WithCompletedAt sets the completion timestamp.
func WithCompletedAt(at time.Time) func(*model.Job) {
	return func(j *model.Job) {
		j.CompletedAt = &at
	}
}

// WithCreatedAt backdates the job.
func WithCreatedAt(at time.Time) func(*model.Job) {
	return func(j *model.Job) {
		j.CreatedAt = at
	}
}

// TestSubscription creates a subscription row.
func TestSubscription(t *testing.T, db *gorm.DB, userID, plan, status string) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		ExternalSubscriptionID: fmt.Sprintf("sub_%d", time.Now().UnixNano()),
		Plan:                   plan,
		Status:                 status,
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}
