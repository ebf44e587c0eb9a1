package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Upstream  UpstreamConfig
	RateLimit RateLimitConfig

	OtelEnabled  bool
	OtelEndpoint string
	OtelProtocol string

	SeedFeatures bool
}

// UpstreamConfig configures the generation backend the gateway protects.
type UpstreamConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// RateLimitConfig tunes the per-user throttle on gated generation calls.
type RateLimitConfig struct {
	GenerateRate  float64
	GenerateBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "quotagate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quotagate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Upstream: UpstreamConfig{
			BaseURL:        getenv("UPSTREAM_BASE_URL", ""),
			APIKey:         strings.TrimSpace(getenv("UPSTREAM_API_KEY", "")),
			TimeoutSeconds: getenvInt("UPSTREAM_TIMEOUT_SECONDS", 60),
		},

		RateLimit: RateLimitConfig{
			GenerateRate:  getenvFloat("RATE_LIMIT_GENERATE_RATE", 1),
			GenerateBurst: getenvInt("RATE_LIMIT_GENERATE_BURST", 10),
		},

		OtelEnabled:  getenvBool("OTEL_ENABLED", false),
		OtelEndpoint: getenv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		OtelProtocol: strings.ToLower(getenv("OTEL_EXPORTER_PROTOCOL", "grpc")),

		SeedFeatures: getenvBool("SEED_FEATURES", true),
	}
}

// Module wires configuration loading for the application.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
