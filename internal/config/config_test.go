package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/daybook-app/cadence/internal/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("Expected default Redis URL, got %s", cfg.RedisURL)
	}
	if cfg.HorizonDays != 90 {
		t.Errorf("Expected horizon_days=90, got %d", cfg.HorizonDays)
	}
	if cfg.MaterializeInterval != time.Hour {
		t.Errorf("Expected materialize_interval=1h, got %v", cfg.MaterializeInterval)
	}
	if cfg.MaterializeConcurrency != 4 {
		t.Errorf("Expected materialize_concurrency=4, got %d", cfg.MaterializeConcurrency)
	}
	if cfg.ReminderInterval != 15*time.Minute {
		t.Errorf("Expected reminder_interval=15m, got %v", cfg.ReminderInterval)
	}
	if cfg.ReminderLookahead != 30*time.Hour {
		t.Errorf("Expected reminder_lookahead=30h, got %v", cfg.ReminderLookahead)
	}
	if cfg.Logging == nil || cfg.Logging.Level != logger.LevelInfo {
		t.Error("Expected default logging config at info level")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("REDIS_URL", "redis://redis.prod:6379/2")
	os.Setenv("HORIZON_DAYS", "30")
	os.Setenv("MATERIALIZE_INTERVAL", "30m")
	os.Setenv("REMINDER_INTERVAL", "5m")
	os.Setenv("REMINDER_CRON", "*/5 * * * *")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RedisURL != "redis://redis.prod:6379/2" {
		t.Errorf("Expected env Redis URL, got %s", cfg.RedisURL)
	}
	if cfg.HorizonDays != 30 {
		t.Errorf("Expected horizon_days=30, got %d", cfg.HorizonDays)
	}
	if cfg.MaterializeInterval != 30*time.Minute {
		t.Errorf("Expected materialize_interval=30m, got %v", cfg.MaterializeInterval)
	}
	if cfg.ReminderInterval != 5*time.Minute {
		t.Errorf("Expected reminder_interval=5m, got %v", cfg.ReminderInterval)
	}
	if cfg.ReminderCron != "*/5 * * * *" {
		t.Errorf("Expected reminder cron override, got %q", cfg.ReminderCron)
	}
	if cfg.Logging.Level != logger.LevelDebug {
		t.Errorf("Expected debug log level, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_InvalidEnvFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("HORIZON_DAYS", "not-a-number")
	os.Setenv("MATERIALIZE_INTERVAL", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.HorizonDays != 90 {
		t.Errorf("Expected default horizon_days, got %d", cfg.HorizonDays)
	}
	if cfg.MaterializeInterval != time.Hour {
		t.Errorf("Expected default materialize_interval, got %v", cfg.MaterializeInterval)
	}
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "cadence.yaml")
	data := []byte(`
redis_url: redis://file-host:6379
horizon_days: 45
reminder_interval: 10m
logging:
  level: warn
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	os.Setenv("CADENCE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RedisURL != "redis://file-host:6379" {
		t.Errorf("Expected file Redis URL, got %s", cfg.RedisURL)
	}
	if cfg.HorizonDays != 45 {
		t.Errorf("Expected horizon_days=45, got %d", cfg.HorizonDays)
	}
	if cfg.ReminderInterval != 10*time.Minute {
		t.Errorf("Expected reminder_interval=10m, got %v", cfg.ReminderInterval)
	}
	if cfg.Logging.Level != logger.LevelWarn {
		t.Errorf("Expected warn log level, got %s", cfg.Logging.Level)
	}
	// Untouched fields keep their defaults.
	if cfg.MaterializeInterval != time.Hour {
		t.Errorf("Expected default materialize_interval, got %v", cfg.MaterializeInterval)
	}
}

func TestLoadConfig_EnvWinsOverFile(t *testing.T) {
	os.Clearenv()

	path := filepath.Join(t.TempDir(), "cadence.yaml")
	if err := os.WriteFile(path, []byte("horizon_days: 45\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	os.Setenv("CADENCE_CONFIG", path)
	os.Setenv("HORIZON_DAYS", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.HorizonDays != 7 {
		t.Errorf("Expected env to win over file, got %d", cfg.HorizonDays)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	os.Clearenv()
	os.Setenv("CADENCE_CONFIG", "/nonexistent/cadence.yaml")

	if _, err := LoadConfig(); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"horizon too small", "HORIZON_DAYS", "0"},
		{"reminder interval too small", "REMINDER_INTERVAL", "30s"},
		{"lookahead below widest bucket", "REMINDER_LOOKAHEAD", "12h"},
		{"bad cron expression", "REMINDER_CRON", "every fifteen minutes"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.key, tc.value)

			if _, err := LoadConfig(); err == nil {
				t.Errorf("Expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
