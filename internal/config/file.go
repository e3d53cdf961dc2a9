package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daybook-app/cadence/internal/logger"
)

// fileConfig mirrors Config for YAML decoding. Durations are strings in
// Go duration syntax ("15m", "1h30m") rather than raw nanoseconds.
type fileConfig struct {
	RedisURL               string `yaml:"redis_url"`
	HorizonDays            *int   `yaml:"horizon_days"`
	MaterializeInterval    string `yaml:"materialize_interval"`
	MaterializeConcurrency *int   `yaml:"materialize_concurrency"`
	ReminderInterval       string `yaml:"reminder_interval"`
	ReminderCron           string `yaml:"reminder_cron"`
	ReminderLookahead      string `yaml:"reminder_lookahead"`
	LockTTL                string `yaml:"lock_ttl"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   struct {
			Enabled *bool  `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"file"`
	} `yaml:"logging"`
}

// applyFile overlays values from a YAML config file onto c. Only fields
// present in the file are touched; the environment still wins afterwards.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.RedisURL != "" {
		c.RedisURL = fc.RedisURL
	}
	if fc.HorizonDays != nil {
		c.HorizonDays = *fc.HorizonDays
	}
	if fc.MaterializeConcurrency != nil {
		c.MaterializeConcurrency = *fc.MaterializeConcurrency
	}
	if fc.ReminderCron != "" {
		c.ReminderCron = fc.ReminderCron
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{fc.MaterializeInterval, "materialize_interval", &c.MaterializeInterval},
		{fc.ReminderInterval, "reminder_interval", &c.ReminderInterval},
		{fc.ReminderLookahead, "reminder_lookahead", &c.ReminderLookahead},
		{fc.LockTTL, "lock_ttl", &c.LockTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if fc.Logging.Level != "" {
		c.Logging.Level = logger.LogLevel(fc.Logging.Level)
	}
	if fc.Logging.Format != "" {
		c.Logging.Format = logger.LogFormat(fc.Logging.Format)
	}
	if fc.Logging.File.Enabled != nil {
		c.Logging.File.Enabled = *fc.Logging.File.Enabled
	}
	if fc.Logging.File.Path != "" {
		c.Logging.File.Path = fc.Logging.File.Path
	}

	return nil
}
