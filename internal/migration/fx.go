package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/quotagate/internal/config"
	featuredomain "github.com/smallbiznis/quotagate/internal/feature/domain"
	ledgerdomain "github.com/smallbiznis/quotagate/internal/ledger/domain"
	"github.com/smallbiznis/quotagate/internal/seed"
	subscriptiondomain "github.com/smallbiznis/quotagate/internal/subscription/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql use gorm's schema sync; versioned SQL is
			// maintained for postgres only.
			if err := conn.AutoMigrate(
				&featuredomain.Feature{},
				&subscriptiondomain.Subscription{},
				&ledgerdomain.CreditBalance{},
				&ledgerdomain.UsageRecord{},
				&ledgerdomain.CreditGrant{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedFeatures {
			return seed.EnsureDefaultFeatures(conn)
		}
		return nil
	}),
)
