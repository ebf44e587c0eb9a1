package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/quotagate/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect selects the gorm driver for the configured database type.
// Postgres is the production target; sqlite exists for local development.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	case "mysql":
		return mysql.Open(mysqlDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.DBName + ".db"), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func postgresDSN(cfg config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

func mysqlDSN(cfg config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}
