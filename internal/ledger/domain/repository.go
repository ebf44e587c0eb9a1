package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// DecrementBalance performs the atomic compare-and-decrement. It
	// returns true when a credit was consumed, false when the balance was
	// already zero or the user has no balance row.
	DecrementBalance(ctx context.Context, db *gorm.DB, userID string) (bool, error)
	// IncrementBalance adds amount to the user's balance, creating the
	// balance row when absent. newID seeds the row on first insert.
	IncrementBalance(ctx context.Context, db *gorm.DB, newID snowflake.ID, userID string, amount int64) error
	FindBalance(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	AppendUsageRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	InsertGrant(ctx context.Context, db *gorm.DB, grant *CreditGrant) error
	FindGrantByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*CreditGrant, error)
	ListUsageRecords(ctx context.Context, db *gorm.DB, filter ListUsageRequest, afterID int64, limit int) ([]UsageRecord, error)
}
