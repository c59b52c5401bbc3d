package model

import (
	"time"
)

// Plans. User.Plan is derived from subscription status by
// AccountService and never written by user-facing code.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

type User struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Email            string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Name             string    `gorm:"size:100" json:"name"`
	Plan             string    `gorm:"size:20;default:free" json:"plan"`
	BillingCustomerID *string  `gorm:"size:100;uniqueIndex" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// OwnerID a user row is owned by itself.
func (u *User) OwnerID() string {
	return u.ID
}
