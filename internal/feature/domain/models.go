// Package domain contains persistence models for the feature registry.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Feature describes a single gated capability. A key absent from the
// registry is treated the same as a disabled one.
type Feature struct {
	ID snowflake.ID `gorm:"primaryKey"`

	Key        string            `gorm:"type:text;not null;uniqueIndex:ux_features_key"`
	Domain     string            `gorm:"type:text;not null;index"`
	Name       string            `gorm:"type:text;not null"`
	Enabled    bool              `gorm:"not null;default:true"`
	ComingSoon *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Feature) TableName() string { return "features" }
