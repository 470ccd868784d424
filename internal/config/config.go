package config

import (
	"os"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	// DatabaseURL is the PostgreSQL connection URL. An empty value is
	// not an error: the store reports itself unconfigured and every
	// database-backed feature degrades gracefully.
	DatabaseURL string

	// MetricsAddr is the listen address for the ops-only Prometheus
	// endpoint. Empty disables the listener.
	MetricsAddr string

	// SettingPath points at the optional setting.toml used to seed
	// config-table defaults on first startup.
	SettingPath string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MetricsAddr: getenv("METRICS_ADDR", ":9100"),
		SettingPath: getenv("SETTING_PATH", "setting.toml"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
