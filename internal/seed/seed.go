// Package seed provisions the default feature catalog at startup so a fresh
// install gates real feature keys without manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type feature struct {
	Key        string
	Domain     string
	Name       string
	Enabled    bool
	ComingSoon *string
}

func strptr(s string) *string { return &s }

var defaultFeatures = []feature{
	{Key: "docker_generation", Domain: "generation", Name: "Dockerfile Generation", Enabled: true},
	{Key: "ci_pipeline", Domain: "generation", Name: "CI Pipeline Generation", Enabled: true},
	{Key: "compose_generation", Domain: "generation", Name: "Compose File Generation", Enabled: true},
	{Key: "ai_assistance", Domain: "assistant", Name: "AI Assistance", Enabled: true},
	{Key: "cost_report", Domain: "insights", Name: "Cost Report", Enabled: false, ComingSoon: strptr("Cost reporting is being rebuilt.")},
}

// EnsureDefaultFeatures inserts the built-in feature catalog, leaving rows
// an operator already customized untouched.
func EnsureDefaultFeatures(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	now := time.Now().UTC()
	for _, f := range defaultFeatures {
		row := featuredomain.Feature{
			ID:         node.Generate(),
			Key:        f.Key,
			Domain:     f.Domain,
			Name:       f.Name,
			Enabled:    f.Enabled,
			ComingSoon: f.ComingSoon,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		// clause.OnConflict keeps the insert-if-absent portable across the
		// supported dialects; an existing row always wins.
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&row).Error

		if err != nil {
			return err
		}
	}

	return nil
}
