// Package config holds the agent configuration: gateway endpoint, job
// identity defaults and sampling cadence. Values come from defaults, an
// optional config file, then environment overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config configures the profiling agent.
type Config struct {
	// Gateway push
	GatewayURL string `json:"gateway_url" yaml:"gateway_url"`
	JobName    string `json:"job_name" yaml:"job_name"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`

	// SessionID identifies this worker session; its first dash-separated
	// segment becomes the gateway instance label.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Intervals
	Interval    time.Duration `json:"interval" yaml:"interval"`
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// Debug
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Default returns the default configuration. The session id is freshly
// generated; the owning runtime usually overrides it with its own.
func Default() *Config {
	return &Config{
		JobName:     "jobprof",
		Enabled:     true,
		SessionID:   uuid.NewString(),
		Interval:    10 * time.Second,
		StopTimeout: 5 * time.Second,
		LogLevel:    "info",
	}
}

// Load reads configuration from a file, trying YAML first and then JSON,
// and applies environment overrides on top. An empty path loads defaults
// plus overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides applies JOBPROF_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.GatewayURL = stringFromEnv("JOBPROF_GATEWAY_URL", c.GatewayURL)
	c.JobName = stringFromEnv("JOBPROF_JOB_NAME", c.JobName)
	c.SessionID = stringFromEnv("JOBPROF_SESSION_ID", c.SessionID)
	c.Interval = durationFromEnv("JOBPROF_INTERVAL", c.Interval)
	c.StopTimeout = durationFromEnv("JOBPROF_STOP_TIMEOUT", c.StopTimeout)
	c.LogLevel = stringFromEnv("JOBPROF_LOG_LEVEL", c.LogLevel)
	if val := os.Getenv("JOBPROF_DISABLED"); val == "true" {
		c.Enabled = false
	}
}
