package config

import (
	"os"
	"strconv"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("VIEWERCORE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("VIEWERCORE_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Cache settings
	if capacity := os.Getenv("VIEWERCORE_CACHE_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = n
		}
	}

	// Provider settings
	cfg.Provider.Mode = GetEnvOrDefault("VIEWERCORE_PROVIDER", cfg.Provider.Mode)
	cfg.Provider.LocalPath = GetEnvOrDefault("VIEWERCORE_LOCAL_PATH", cfg.Provider.LocalPath)
	cfg.Provider.S3.Endpoint = GetEnvOrDefault("S3_ENDPOINT", cfg.Provider.S3.Endpoint)
	cfg.Provider.S3.AccessKey = GetEnvOrDefault("S3_ACCESS_KEY", cfg.Provider.S3.AccessKey)
	cfg.Provider.S3.SecretKey = GetEnvOrDefault("S3_SECRET_KEY", cfg.Provider.S3.SecretKey)
	cfg.Provider.Postgres.Host = GetEnvOrDefault("POSTGRES_HOST", cfg.Provider.Postgres.Host)
	cfg.Provider.Postgres.Password = GetEnvOrDefault("POSTGRES_PASSWORD", cfg.Provider.Postgres.Password)
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
