package logger

import (
	"fmt"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Component identifies which part of the engine generated the log
type Component string

const (
	ComponentEngine       Component = "engine"
	ComponentGenerator    Component = "generator"
	ComponentMaterializer Component = "materializer"
	ComponentReminder     Component = "reminder"
	ComponentStore        Component = "store"
	ComponentExport       Component = "export"
	ComponentConfig       Component = "config"
)

// Config holds the complete logging configuration for both tiers
type Config struct {
	// Global settings
	Level  LogLevel  `json:"level" yaml:"level"`
	Format LogFormat `json:"format" yaml:"format"`

	// Tier 1: Console (always enabled)
	Console ConsoleConfig `json:"console" yaml:"console"`

	// Tier 2: File (optional)
	File FileConfig `json:"file" yaml:"file"`
}

// ConsoleConfig configures console/terminal logging (Tier 1)
type ConsoleConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	Color         bool          `json:"color" yaml:"color"`                   // Colored output (text mode only)
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`       // Async buffer size in bytes
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"` // Flush interval
}

// FileConfig configures file-based logging (Tier 2)
type FileConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`                 // Log file path
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`   // Max size before rotation
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`   // Max number of old log files
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"` // Max age in days
	Compress   bool   `json:"compress" yaml:"compress"`         // Compress rotated files

	// Performance settings
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`       // Channel buffer size
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`         // Batch write size
	BatchInterval time.Duration `json:"batch_interval" yaml:"batch_interval"` // Batch flush interval
}

// DefaultConfig returns a configuration with sensible defaults: colored
// console logging at info level, file tier disabled.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Console: ConsoleConfig{
			Enabled:       true,
			Color:         true,
			BufferSize:    65536,
			FlushInterval: 100 * time.Millisecond,
		},
		File: FileConfig{
			Enabled:       false,
			Path:          "/var/log/cadence/cadence.log",
			MaxSizeMB:     100,
			MaxBackups:    5,
			MaxAgeDays:    30,
			Compress:      true,
			BufferSize:    10000,
			BatchSize:     100,
			BatchInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatText:
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}

	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("file logging enabled but path is empty")
		}
		if c.File.MaxSizeMB < 1 {
			return fmt.Errorf("file max size must be at least 1 MB")
		}
	}

	return nil
}
