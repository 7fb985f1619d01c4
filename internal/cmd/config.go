package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional file-based configuration. Everything has a working
// default so the server boots with no config file at all; environment
// variables override connection settings.
type Config struct {
	Draft struct {
		DefaultRounds         int `yaml:"default_rounds"`
		DefaultTimePerPickSec int `yaml:"default_time_per_pick_sec"`
	} `yaml:"draft"`

	Outbox struct {
		PollIntervalSec int   `yaml:"poll_interval_sec"`
		BatchSize       int32 `yaml:"batch_size"`
		MaxRetries      int   `yaml:"max_retries"`
		RetryDelaySec   int   `yaml:"retry_delay_sec"`
	} `yaml:"outbox"`

	Publish struct {
		Enabled       bool   `yaml:"enabled"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"publish"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Draft.DefaultRounds = 15
	cfg.Draft.DefaultTimePerPickSec = 60
	cfg.Outbox.PollIntervalSec = 5
	cfg.Outbox.BatchSize = 100
	cfg.Outbox.MaxRetries = 3
	cfg.Outbox.RetryDelaySec = 1
	cfg.Publish.Enabled = false
	cfg.Publish.StreamName = "DRAFT_EVENTS"
	cfg.Publish.SubjectPrefix = "draft.events"
	return &cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) outboxPollInterval() time.Duration {
	return time.Duration(c.Outbox.PollIntervalSec) * time.Second
}

func (c *Config) outboxRetryDelay() time.Duration {
	return time.Duration(c.Outbox.RetryDelaySec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
