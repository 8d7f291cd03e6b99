package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Vault.MasterSecret == "" {
		return nil, fmt.Errorf("vault.master_secret is required")
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Vault.KeyID == "" {
		cfg.Vault.KeyID = "primary"
	}
	if cfg.Worker.HealthCheckInterval == 0 {
		cfg.Worker.HealthCheckInterval = 5 * time.Minute
	}
	if cfg.Worker.TokenRefreshInterval == 0 {
		cfg.Worker.TokenRefreshInterval = time.Hour
	}
	if cfg.Worker.JobRetention == 0 {
		cfg.Worker.JobRetention = time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
