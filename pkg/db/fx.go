package db

import (
	"context"
	"time"

	"github.com/smallbiznis/quotagate/internal/config"
	"github.com/smallbiznis/quotagate/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Open builds the gorm connection from application config.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	return conn, nil
}

func registerHooks(lc fx.Lifecycle, conn *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
}

// Module wires the database connection for the application.
var Module = fx.Module("db",
	fx.Provide(Open),
	fx.Invoke(registerHooks),
)
