package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotagate/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// DecrementBalance is the single point of credit consumption. The WHERE
// clause keeps the balance non-negative and serializes concurrent charges
// for the same user: the second of two racing decrements sees the balance
// already reduced by the first.
func (r *repo) DecrementBalance(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance = balance - 1, updated_at = ?
		 WHERE user_id = ? AND balance > 0`,
		time.Now().UTC(),
		strings.TrimSpace(userID),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementBalance upserts through clause.OnConflict so gorm renders the
// conflict handling each connected dialect understands.
func (r *repo) IncrementBalance(ctx context.Context, db *gorm.DB, newID snowflake.ID, userID string, amount int64) error {
	now := time.Now().UTC()
	row := domain.CreditBalance{
		ID:        newID,
		UserID:    strings.TrimSpace(userID),
		Balance:   amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": now,
		}),
	}).Create(&row).Error
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var row domain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, balance, created_at, updated_at
		 FROM credit_balances WHERE user_id = ?`,
		strings.TrimSpace(userID),
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.ID == 0 {
		return 0, nil
	}
	return row.Balance, nil
}

func (r *repo) AppendUsageRecord(ctx context.Context, db *gorm.DB, record *domain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (
			id, user_id, feature_key, outcome, occurred_at, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.FeatureKey,
		record.Outcome,
		record.OccurredAt,
		record.Metadata,
		record.CreatedAt,
	).Error
}

func (r *repo) InsertGrant(ctx context.Context, db *gorm.DB, grant *domain.CreditGrant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_grants (
			id, user_id, amount, source, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		grant.ID,
		grant.UserID,
		grant.Amount,
		grant.Source,
		grant.IdempotencyKey,
		grant.CreatedAt,
	).Error
}

func (r *repo) FindGrantByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.CreditGrant, error) {
	var grant domain.CreditGrant
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, amount, source, idempotency_key, created_at
		 FROM credit_grants WHERE idempotency_key = ?`,
		strings.TrimSpace(key),
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *repo) ListUsageRecords(ctx context.Context, db *gorm.DB, filter domain.ListUsageRequest, afterID int64, limit int) ([]domain.UsageRecord, error) {
	var items []domain.UsageRecord
	stmt := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("user_id = ?", strings.TrimSpace(filter.UserID))

	if filter.FeatureKey != "" {
		stmt = stmt.Where("feature_key = ?", filter.FeatureKey)
	}
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}

	if err := stmt.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
