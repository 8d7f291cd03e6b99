package config

import (
	"time"

	"github.com/omnipost/publisher/internal/queue"
	"github.com/omnipost/publisher/internal/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig              `yaml:"server"`
	Database  postgres.Config           `yaml:"database"`
	Queue     queue.Config              `yaml:"queue"`
	Vault     VaultConfig               `yaml:"vault"`
	Worker    WorkerConfig              `yaml:"worker"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// VaultConfig holds secret-vault key material.
type VaultConfig struct {
	MasterSecret string `yaml:"master_secret"`
	KeyID        string `yaml:"key_id"`
}

// WorkerConfig holds background loop intervals.
type WorkerConfig struct {
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	TokenRefreshInterval time.Duration `yaml:"token_refresh_interval"`
	JobRetention         time.Duration `yaml:"job_retention"` // 0 = keep forever
}

// PlatformConfig holds one platform's OAuth app credentials.
type PlatformConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
