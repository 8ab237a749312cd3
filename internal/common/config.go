// Package common provides shared utilities for the CareerForge backend.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the job orchestration backend.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig    `toml:"auth"`
	JobManager  JobManagerConfig `toml:"job_manager"`
	Webhook     WebhookConfig    `toml:"webhook"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the SurrealDB connection configuration. SurrealDB is
// the sole persistent backing store for jobs and webhook state.
type StorageConfig struct {
	Address   string `toml:"address"`   // e.g. ws://127.0.0.1:8000/rpc
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ClientsConfig holds API client configurations for Domain Service adapters.
type ClientsConfig struct {
	Gemini GeminiConfig `toml:"gemini"`
}

// GeminiConfig holds Gemini API configuration, used by the enhancement and
// evaluation Domain Service adapters.
type GeminiConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxContentSize string `toml:"max_content_size"`
	Timeout        string `toml:"timeout"`
}

// GetTimeout parses and returns the Gemini request timeout
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AuthConfig holds bearer-token authentication configuration.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level" mapstructure:"level"`
	Format     string   `toml:"format" mapstructure:"format"`
	Outputs    []string `toml:"outputs" mapstructure:"outputs"`
	FilePath   string   `toml:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" mapstructure:"max_backups"`
}

// JobManagerConfig holds Job Service / Queue Broker / Worker Runtime knobs.
type JobManagerConfig struct {
	WatcherStartupDelay string `toml:"watcher_startup_delay"` // delay before the stalled-job sweep starts, default "10s"
	WatcherInterval     string `toml:"watcher_interval"`      // poll interval for queued/retrying rows, default "2s"
	LockDuration        string `toml:"lock_duration"`         // visibility timeout for a claimed job, default "5m"
	HeavyJobLimit       int    `toml:"heavy_job_limit"`       // concurrency cap on heavy processor types (default 1)
	MaxConcurrent       int    `toml:"max_concurrent"`        // overall worker concurrency, default 10
	MaxRetries          int    `toml:"max_retries"`           // retry ceiling before a job is marked failed terminally
	ChannelRatePerSecond float64 `toml:"channel_rate_per_second"` // per-channel consumer rate limit, default 20
}

// GetWatcherStartupDelay parses WatcherStartupDelay, falling back to 10s and
// honoring a CAREERFORGE_WATCHER_STARTUP_DELAY env override.
func (c *JobManagerConfig) GetWatcherStartupDelay() time.Duration {
	v := c.WatcherStartupDelay
	if env := os.Getenv("CAREERFORGE_WATCHER_STARTUP_DELAY"); env != "" {
		v = env
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetWatcherInterval parses WatcherInterval, falling back to 2s.
func (c *JobManagerConfig) GetWatcherInterval() time.Duration {
	d, err := time.ParseDuration(c.WatcherInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetLockDuration parses LockDuration, falling back to 5m.
func (c *JobManagerConfig) GetLockDuration() time.Duration {
	d, err := time.ParseDuration(c.LockDuration)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetHeavyJobLimit returns HeavyJobLimit, falling back to 1 when unset or zero.
func (c *JobManagerConfig) GetHeavyJobLimit() int {
	if c.HeavyJobLimit <= 0 {
		return 1
	}
	return c.HeavyJobLimit
}

// GetMaxConcurrent returns MaxConcurrent, falling back to 10 when unset or zero.
func (c *JobManagerConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 10
	}
	return c.MaxConcurrent
}

// GetMaxRetries returns MaxRetries, falling back to 5 when unset or zero.
func (c *JobManagerConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 5
	}
	return c.MaxRetries
}

// GetChannelRatePerSecond returns ChannelRatePerSecond, falling back to 20
// when unset or zero.
func (c *JobManagerConfig) GetChannelRatePerSecond() float64 {
	if c.ChannelRatePerSecond <= 0 {
		return 20
	}
	return c.ChannelRatePerSecond
}

// WebhookConfig holds Webhook Dispatcher knobs.
type WebhookConfig struct {
	SigningSecret string `toml:"signing_secret"` // HMAC key for the X-CareerForge-Signature header
	Timeout       string `toml:"timeout"`         // outbound HTTP timeout, default "10s"
	RatePerSecond int    `toml:"rate_per_second"` // per-subscription outbound rate limit, default 5
	MaxRetries    int    `toml:"max_retries"`     // delivery retry ceiling, default 8
}

// GetTimeout parses Timeout, falling back to 10s.
func (c *WebhookConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetRatePerSecond returns RatePerSecond, falling back to 5 when unset or zero.
func (c *WebhookConfig) GetRatePerSecond() int {
	if c.RatePerSecond <= 0 {
		return 5
	}
	return c.RatePerSecond
}

// GetMaxRetries returns MaxRetries, falling back to 8 when unset or zero.
func (c *WebhookConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 8
	}
	return c.MaxRetries
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000/rpc",
			Namespace: "careerforge",
			Database:  "jobs",
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:          "gemini-2.0-flash",
				MaxContentSize: "34MB",
				Timeout:        "30s",
			},
		},
		Auth: AuthConfig{
			JWTSecret:   "change-me-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/careerforge.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		JobManager: JobManagerConfig{
			WatcherStartupDelay:  "10s",
			WatcherInterval:      "2s",
			LockDuration:         "5m",
			HeavyJobLimit:        1,
			MaxConcurrent:        10,
			MaxRetries:           5,
			ChannelRatePerSecond: 20,
		},
		Webhook: WebhookConfig{
			Timeout:       "10s",
			RatePerSecond: 5,
			MaxRetries:    8,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAREERFORGE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("CAREERFORGE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("CAREERFORGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("CAREERFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("CAREERFORGE_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if v := os.Getenv("CAREERFORGE_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("CAREERFORGE_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}

	for _, envVarName := range []string{"GEMINI_API_KEY", "CAREERFORGE_GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := os.Getenv(envVarName); v != "" {
			config.Clients.Gemini.APIKey = v
			break
		}
	}

	if v := os.Getenv("CAREERFORGE_JOBS_HEAVY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.JobManager.HeavyJobLimit = n
		}
	}
	if v := os.Getenv("CAREERFORGE_WATCHER_STARTUP_DELAY"); v != "" {
		config.JobManager.WatcherStartupDelay = v
	}

	if v := os.Getenv("CAREERFORGE_WEBHOOK_SIGNING_SECRET"); v != "" {
		config.Webhook.SigningSecret = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the names of required fields that are still at
// their insecure/empty defaults. Used at startup to refuse to serve traffic
// with a default JWT secret or missing provider credentials in production.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Clients.Gemini.APIKey == "" {
		missing = append(missing, "clients.gemini.api_key")
	}
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		missing = append(missing, "auth.jwt_secret")
	}
	if c.Storage.Address == "" {
		missing = append(missing, "storage.address")
	}
	if c.Storage.Namespace == "" {
		missing = append(missing, "storage.namespace")
	}
	if c.Storage.Database == "" {
		missing = append(missing, "storage.database")
	}
	return missing
}
