package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "quotagate", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 60, cfg.Upstream.TimeoutSeconds)
	assert.Equal(t, float64(1), cfg.RateLimit.GenerateRate)
	assert.Equal(t, 10, cfg.RateLimit.GenerateBurst)
	assert.True(t, cfg.SeedFeatures)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("UPSTREAM_API_KEY", "  secret  ")
	t.Setenv("RATE_LIMIT_GENERATE_RATE", "2.5")
	t.Setenv("RATE_LIMIT_GENERATE_BURST", "3")
	t.Setenv("SEED_FEATURES", "off")
	t.Setenv("OTEL_EXPORTER_PROTOCOL", "HTTP")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "secret", cfg.Upstream.APIKey)
	assert.Equal(t, 2.5, cfg.RateLimit.GenerateRate)
	assert.Equal(t, 3, cfg.RateLimit.GenerateBurst)
	assert.False(t, cfg.SeedFeatures)
	assert.Equal(t, "http", cfg.OtelProtocol)
}

func TestEnvParsersTolerateGarbage(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONN", "not-a-number")
	t.Setenv("RATE_LIMIT_GENERATE_RATE", "fast")
	t.Setenv("SEED_FEATURES", "maybe")

	cfg := Load()

	assert.Equal(t, 25, cfg.DBMaxOpenConn)
	assert.Equal(t, float64(1), cfg.RateLimit.GenerateRate)
	assert.True(t, cfg.SeedFeatures)
}
