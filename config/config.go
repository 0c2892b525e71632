package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL    string
	UploadDir      string
	MaxUploadBytes int64
	JWTSecret      string
	AdminCode      string
	Port           string
	Environment    string
	StatsWindow    int // trailing window for "recent submissions", in days
}

func Load() *Config {
	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", "veriform.db"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 5*1024*1024),
		JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		AdminCode:      getEnv("ADMIN_CODE", "VERIFORM_ADMIN_2025"),
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		StatsWindow:    7,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("WARNING: ignoring invalid %s=%q", key, value)
	}
	return defaultValue
}

func ValidateConfig(cfg *Config) {
	if cfg.MaxUploadBytes < 1024 {
		log.Fatalf("MAX_UPLOAD_BYTES too small: %d", cfg.MaxUploadBytes)
	}
	if len(cfg.JWTSecret) < 32 {
		log.Printf("WARNING: JWT_SECRET should be at least 32 characters for security")
	}
	if cfg.Environment == "production" && cfg.AdminCode == "VERIFORM_ADMIN_2025" {
		log.Printf("WARNING: Change ADMIN_CODE in production environment")
	}
}
