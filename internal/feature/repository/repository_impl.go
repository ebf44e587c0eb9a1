package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/quotagate/internal/feature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO features (
			id, key, domain, name, enabled, coming_soon, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feature.ID,
		feature.Key,
		feature.Domain,
		feature.Name,
		feature.Enabled,
		feature.ComingSoon,
		feature.Metadata,
		feature.CreatedAt,
		feature.UpdatedAt,
	).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT id, key, domain, name, enabled, coming_soon, metadata, created_at, updated_at
		 FROM features WHERE key = ?`,
		strings.TrimSpace(key),
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Feature, error) {
	var items []domain.Feature
	stmt := db.WithContext(ctx).Model(&domain.Feature{})

	if filter.Domain != "" {
		stmt = stmt.Where("domain = ?", filter.Domain)
	}
	if filter.Enabled != nil {
		stmt = stmt.Where("enabled = ?", *filter.Enabled)
	}

	if err := stmt.Order("key ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	if feature == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE features
		 SET name = ?, domain = ?, enabled = ?, coming_soon = ?, metadata = ?, updated_at = ?
		 WHERE key = ?`,
		feature.Name,
		feature.Domain,
		feature.Enabled,
		feature.ComingSoon,
		feature.Metadata,
		feature.UpdatedAt,
		feature.Key,
	).Error
}
