package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotagate/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, status, start_at, expires_at, canceled_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.Status,
		subscription.StartAt,
		subscription.ExpiresAt,
		subscription.CanceledAt,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, status, start_at, expires_at, canceled_at, metadata, created_at, updated_at
		 FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, status, start_at, expires_at, canceled_at, metadata, created_at, updated_at
		 FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		strings.TrimSpace(userID),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	if subscription == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, expires_at = ?, canceled_at = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.ExpiresAt,
		subscription.CanceledAt,
		subscription.Metadata,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}
