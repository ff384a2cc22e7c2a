package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Federation  FederationConfig
	Site        SiteConfig
	Jobs        JobsConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// FederationConfig is injected into every federation entry point. When
// Enabled is false all federation endpoints answer 404 and outbound
// broadcasts become no-ops that still invoke their completion callbacks.
type FederationConfig struct {
	Enabled bool
	Domain  string
}

type SiteConfig struct {
	Name         string
	ContactEmail string
}

type JobsConfig struct {
	ExpireAfterDays int
	DeliveryTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Federation: FederationConfig{
			Enabled: getEnvBool("FEDERATION_ENABLED", true),
			Domain:  getEnv("FEDERATION_DOMAIN", ""),
		},
		Site: SiteConfig{
			Name:         getEnv("SITE_NAME", "convene"),
			ContactEmail: getEnv("SITE_CONTACT_EMAIL", ""),
		},
		Jobs: JobsConfig{
			ExpireAfterDays: getEnvInt("JOB_EXPIRE_AFTER_DAYS", 7),
			DeliveryTimeout: time.Duration(getEnvInt("DELIVERY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Federation.Enabled && cfg.Federation.Domain == "" {
		return Config{}, fmt.Errorf("FEDERATION_DOMAIN is required when federation is enabled")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
