// Package config loads engine configuration from environment variables,
// with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/daybook-app/cadence/internal/logger"
)

// Config holds all configuration for the Cadence engine
type Config struct {
	// RedisURL is the connection URL for Redis
	RedisURL string `yaml:"redis_url"`
	// HorizonDays is how many days ahead each materialization pass covers
	HorizonDays int `yaml:"horizon_days"`
	// MaterializeInterval is how often active rules are re-materialized
	MaterializeInterval time.Duration `yaml:"materialize_interval"`
	// MaterializeConcurrency bounds how many rules materialize at once
	MaterializeConcurrency int `yaml:"materialize_concurrency"`
	// ReminderInterval is how often the reminder scheduler ticks
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	// ReminderCron, when set, drives reminder ticks from a cron
	// expression (standard 5-field) instead of ReminderInterval
	ReminderCron string `yaml:"reminder_cron"`
	// ReminderLookahead is how far ahead of "now" occurrences are
	// considered for reminders; must cover the widest lead-time bucket
	ReminderLookahead time.Duration `yaml:"reminder_lookahead"`
	// LockTTL is the TTL on the reminder tick lock
	LockTTL time.Duration `yaml:"lock_ttl"`
	// Logging configuration
	Logging *logger.Config `yaml:"logging"`
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. When CADENCE_CONFIG names a YAML file, its values are applied
// first and the environment overrides them.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CADENCE_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		RedisURL:               "redis://localhost:6379",
		HorizonDays:            90,
		MaterializeInterval:    time.Hour,
		MaterializeConcurrency: 4,
		ReminderInterval:       15 * time.Minute,
		ReminderLookahead:      30 * time.Hour,
		LockTTL:                60 * time.Second,
		Logging:                logger.DefaultConfig(),
	}
}

func (c *Config) applyEnv() {
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.HorizonDays = getEnvAsInt("HORIZON_DAYS", c.HorizonDays)
	c.MaterializeInterval = getEnvAsDuration("MATERIALIZE_INTERVAL", c.MaterializeInterval)
	c.MaterializeConcurrency = getEnvAsInt("MATERIALIZE_CONCURRENCY", c.MaterializeConcurrency)
	c.ReminderInterval = getEnvAsDuration("REMINDER_INTERVAL", c.ReminderInterval)
	c.ReminderCron = getEnv("REMINDER_CRON", c.ReminderCron)
	c.ReminderLookahead = getEnvAsDuration("REMINDER_LOOKAHEAD", c.ReminderLookahead)
	c.LockTTL = getEnvAsDuration("LOCK_TTL", c.LockTTL)

	// Logging
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		c.Logging.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		c.Logging.Format = logger.LogFormat(format)
	}
	c.Logging.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", c.Logging.Console.Enabled)
	c.Logging.Console.Color = getEnvAsBool("LOG_COLOR", c.Logging.Console.Color)
	c.Logging.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", c.Logging.File.Enabled)
	c.Logging.File.Path = getEnv("LOG_FILE_PATH", c.Logging.File.Path)
	c.Logging.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", c.Logging.File.MaxSizeMB)
	c.Logging.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", c.Logging.File.MaxBackups)
	c.Logging.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", c.Logging.File.MaxAgeDays)
	c.Logging.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", c.Logging.File.Compress)
}

// Validate checks required fields and cross-field constraints
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL cannot be empty")
	}
	if c.HorizonDays < 1 {
		return fmt.Errorf("HORIZON_DAYS must be at least 1")
	}
	if c.MaterializeConcurrency < 1 {
		return fmt.Errorf("MATERIALIZE_CONCURRENCY must be at least 1")
	}
	if c.ReminderInterval < time.Minute {
		return fmt.Errorf("REMINDER_INTERVAL must be at least 1 minute")
	}
	if c.ReminderLookahead < 28*time.Hour {
		return fmt.Errorf("REMINDER_LOOKAHEAD must cover the widest lead-time bucket (28h)")
	}
	if c.ReminderCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.ReminderCron); err != nil {
			return fmt.Errorf("invalid REMINDER_CRON %q: %w", c.ReminderCron, err)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
