package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if logLevel := os.Getenv("METAVAULT_LOG_LEVEL"); logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat := os.Getenv("METAVAULT_LOG_FORMAT"); logFormat != "" {
		cfg.Log.Format = logFormat
	}

	// Folder
	if path := os.Getenv("METAVAULT_FOLDER"); path != "" {
		cfg.Folder.Path = path
	}
	if bucket := os.Getenv("METAVAULT_S3_BUCKET"); bucket != "" {
		cfg.Folder.Kind = FolderS3
		cfg.Folder.S3.Bucket = bucket
	}
	cfg.Folder.S3.Prefix = GetEnvOrDefault("METAVAULT_S3_PREFIX", cfg.Folder.S3.Prefix)
	cfg.Folder.S3.Region = GetEnvOrDefault("METAVAULT_S3_REGION", cfg.Folder.S3.Region)
	cfg.Folder.S3.Endpoint = GetEnvOrDefault("METAVAULT_S3_ENDPOINT", cfg.Folder.S3.Endpoint)
	cfg.Folder.S3.AccessKey = GetEnvOrDefault("METAVAULT_S3_ACCESS_KEY", cfg.Folder.S3.AccessKey)
	cfg.Folder.S3.SecretKey = GetEnvOrDefault("METAVAULT_S3_SECRET_KEY", cfg.Folder.S3.SecretKey)

	// Tagging; provider keys keep the names the providers document
	cfg.Tagging.Provider = GetEnvOrDefault("METAVAULT_TAG_PROVIDER", cfg.Tagging.Provider)
	cfg.Tagging.Endpoint = GetEnvOrDefault("METAVAULT_TAG_ENDPOINT", cfg.Tagging.Endpoint)
	cfg.Tagging.GoogleAPIKey = GetEnvOrDefault("GOOGLE_VISION_API_KEY", cfg.Tagging.GoogleAPIKey)
	cfg.Tagging.ImaggaAPIKey = GetEnvOrDefault("IMAGGA_API_KEY", cfg.Tagging.ImaggaAPIKey)
	cfg.Tagging.ImaggaAPISecret = GetEnvOrDefault("IMAGGA_API_SECRET", cfg.Tagging.ImaggaAPISecret)
	if timeout := os.Getenv("METAVAULT_TAG_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Tagging.Timeout = d
		}
	}

	// Store
	cfg.Store.Kind = GetEnvOrDefault("METAVAULT_STORE_KIND", cfg.Store.Kind)
	cfg.Store.SQLitePath = GetEnvOrDefault("METAVAULT_SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.RedisURL = GetEnvOrDefault("METAVAULT_REDIS_URL", cfg.Store.RedisURL)
	cfg.Store.PostgresDSN = GetEnvOrDefault("METAVAULT_POSTGRES_DSN", cfg.Store.PostgresDSN)
	cfg.Store.Compression = GetEnvOrDefault("METAVAULT_COMPRESSION", cfg.Store.Compression)

	// Server; PORT wins over METAVAULT_PORT
	for _, key := range []string{"METAVAULT_PORT", "PORT"} {
		if port := os.Getenv(key); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
