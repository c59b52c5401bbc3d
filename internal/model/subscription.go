package model

import (
	"time"
)

// Subscription statuses as reported by the billing provider.
const (
	SubStatusActive   = "active"
	SubStatusTrialing = "trialing"
	SubStatusPastDue  = "past_due"
	SubStatusPaused   = "paused"
	SubStatusCanceled = "canceled"
)

type Subscription struct {
	ID                    string    `gorm:"primaryKey;size:36" json:"id"`
	UserID                string    `gorm:"size:36;not null;index" json:"user_id"`
	ExternalSubscriptionID string   `gorm:"size:100;uniqueIndex;not null" json:"external_subscription_id"`
	Plan                  string    `gorm:"size:20;not null" json:"plan"` // pro, enterprise
	Status                string    `gorm:"size:20;not null;index" json:"status"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// OwnerID row owner, for access-policy checks.
func (s *Subscription) OwnerID() string {
	return s.UserID
}
