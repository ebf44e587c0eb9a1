package observability

import (
	"strings"

	"github.com/smallbiznis/quotagate/internal/config"
)

// Config holds observability configuration derived from application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
}

// LoadConfig derives observability settings from the application config.
func LoadConfig(appCfg config.Config) Config {
	return Config{
		ServiceName:          appCfg.AppName,
		Environment:          appCfg.Environment,
		Version:              appCfg.AppVersion,
		LogLevel:             appCfg.LogLevel,
		LogFormat:            appCfg.LogFormat,
		OtelEnabled:          appCfg.OtelEnabled,
		OtelExporterEndpoint: appCfg.OtelEndpoint,
		OtelExporterProtocol: appCfg.OtelProtocol,
	}
}

// Debug reports whether the environment is a development one.
func (c Config) Debug() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "development" || env == "dev" || env == "local"
}
