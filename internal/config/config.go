// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Remote    RemoteConfig
	Sync      SyncConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	Dir  string `envconfig:"STORAGE_DIR" default:"./data"`
	Seed bool   `envconfig:"STORAGE_SEED" default:"true"`
}

// RemoteConfig holds cloud store configuration. The credential is opaque;
// acquiring it is outside this system.
type RemoteConfig struct {
	Enabled    bool   `envconfig:"REMOTE_ENABLED" default:"false"`
	Endpoint   string `envconfig:"REMOTE_ENDPOINT" default:""`
	Credential string `envconfig:"REMOTE_CREDENTIAL" default:""`
}

// SyncConfig holds the sync queue tuning surface.
type SyncConfig struct {
	DebounceMs       int `envconfig:"SYNC_DEBOUNCE_MS" default:"2000"`
	MaxRetryAttempts int `envconfig:"SYNC_MAX_RETRY_ATTEMPTS" default:"3"`
	BackoffBaseMs    int `envconfig:"SYNC_BACKOFF_BASE_MS" default:"500"`
	BackoffCapMs     int `envconfig:"SYNC_BACKOFF_CAP_MS" default:"30000"`
}

// Debounce returns the coalescing window as a duration.
func (s SyncConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// BackoffBase returns the first retry delay as a duration.
func (s SyncConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the retry delay ceiling as a duration.
func (s SyncConfig) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapMs) * time.Millisecond
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Storage: StorageConfig{Dir: "./data", Seed: true},
		Remote:  RemoteConfig{},
		Sync: SyncConfig{
			DebounceMs:       2000,
			MaxRetryAttempts: 3,
			BackoffBaseMs:    500,
			BackoffCapMs:     30000,
		},
		Logging: LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
