// Package domain contains persistence models for the usage-credit ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageOutcome classifies the billing-visible result of a metered invocation.
type UsageOutcome string

const (
	// UsageOutcomeCharged marks a successfully billed invocation. Exactly
	// one charged record exists per billed invocation.
	UsageOutcomeCharged UsageOutcome = "charged"
	// UsageOutcomeFailedNotCharged marks an invocation whose operation
	// failed; no credit was consumed.
	UsageOutcomeFailedNotCharged UsageOutcome = "failed_not_charged"
	// UsageOutcomeRefunded marks a corrective record for a reversed charge.
	// The original charged record is never deleted.
	UsageOutcomeRefunded UsageOutcome = "refunded"
)

// CreditBalance is the authoritative per-user credit counter. Balance never
// goes negative; decrements are serialized per user by the charge statement.
type CreditBalance struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    string       `gorm:"type:text;not null;uniqueIndex:ux_credit_balances_user"`
	Balance   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// UsageRecord is the append-only audit trail of metered invocations.
// Records are never mutated or deleted.
type UsageRecord struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	UserID     string            `gorm:"type:text;not null;index"`
	FeatureKey string            `gorm:"type:text;not null;index"`
	Outcome    UsageOutcome      `gorm:"type:text;not null"`
	OccurredAt time.Time         `gorm:"not null"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// CreditGrant records an external credit top-up (purchase, signup bonus).
// The idempotency key makes webhook replays harmless.
type CreditGrant struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         string       `gorm:"type:text;not null;index"`
	Amount         int64        `gorm:"not null"`
	Source         string       `gorm:"type:text;not null"`
	IdempotencyKey *string      `gorm:"type:text;uniqueIndex:ux_credit_grants_idem"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditGrant) TableName() string { return "credit_grants" }
