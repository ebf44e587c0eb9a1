package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) ([]Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
