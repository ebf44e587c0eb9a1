// Package domain contains persistence models for premium subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
)

// Subscription captures a user's premium agreement. A user with a live
// subscription bypasses credit metering entirely.
type Subscription struct {
	ID         snowflake.ID       `gorm:"primaryKey"`
	UserID     string             `gorm:"type:text;not null;index"`
	Status     SubscriptionStatus `gorm:"type:text;not null"`
	StartAt    time.Time          `gorm:"not null"`
	ExpiresAt  *time.Time         `gorm:""`
	CanceledAt *time.Time         `gorm:""`
	Metadata   datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ActiveAt reports whether the subscription grants premium access at the
// given instant. Expiry is evaluated here so stale rows resolve inactive
// without an external expiry job.
func (s Subscription) ActiveAt(at time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
	default:
		return false
	}
	if at.Before(s.StartAt) {
		return false
	}
	if s.ExpiresAt != nil && !at.Before(*s.ExpiresAt) {
		return false
	}
	if s.CanceledAt != nil && !at.Before(*s.CanceledAt) {
		return false
	}
	return true
}
