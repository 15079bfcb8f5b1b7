// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// GeminiAPIKey enables the primary model-backed agent invoker; when
	// empty the deterministic simulator is used.
	GeminiAPIKey string
	GeminiModel  string

	// MediaServiceURL points at the storage collaborator that resolves
	// content locators and reports generation job status. Empty disables
	// resolution.
	MediaServiceURL string
	JobPollInterval time.Duration
	JobMaxWait      time.Duration

	// MonitorWindow rate-limits read-only campaign monitoring per session.
	MonitorWindow time.Duration

	// StageTimeout bounds a single stage agent invocation.
	StageTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/campaigns.db"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", ""),
		MediaServiceURL: getEnv("MEDIA_SERVICE_URL", ""),
		JobPollInterval: getEnvDuration("JOB_POLL_INTERVAL", 5*time.Second),
		JobMaxWait:      getEnvDuration("JOB_MAX_WAIT", 5*time.Minute),
		MonitorWindow:   getEnvDuration("MONITOR_WINDOW", 2*time.Second),
		StageTimeout:    getEnvDuration("STAGE_TIMEOUT", 2*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JobPollInterval <= 0 {
		return fmt.Errorf("JOB_POLL_INTERVAL must be > 0")
	}
	if c.JobMaxWait < c.JobPollInterval {
		return fmt.Errorf("JOB_MAX_WAIT must be >= JOB_POLL_INTERVAL")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("STAGE_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are taken as seconds.
	if n, err := strconv.Atoi(value); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
