package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daybook-app/cadence/internal/config"
	"github.com/daybook-app/cadence/internal/logger"
	"github.com/daybook-app/cadence/pkg/engine"
)

// connectWithRetry builds the engine with exponential backoff on the
// Redis connection
func connectWithRetry(cfg *config.Config, maxRetries int, log logger.Logger) (*engine.Engine, error) {
	var eng *engine.Engine
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		eng, err = engine.New(cfg)
		if err == nil {
			return eng, nil
		}

		// Calculate exponential backoff delay: 2^attempt seconds (max 30 seconds)
		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	// Set as default logger
	logger.SetDefault(log)

	engineLog := log.WithComponent(logger.ComponentEngine)

	engineLog.Info("Scheduler starting",
		"redis_url", cfg.RedisURL,
		"horizon_days", cfg.HorizonDays,
		"materialize_interval", cfg.MaterializeInterval,
		"reminder_interval", cfg.ReminderInterval)

	// Start pprof server on separate port for profiling
	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	go func() {
		engineLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		if err := http.ListenAndServe(":"+pprofPort, nil); err != nil {
			engineLog.Error("pprof server failed", "error", err)
		}
	}()

	// Connect to Redis with retry logic
	eng, err := connectWithRetry(cfg, 5, engineLog)
	if err != nil {
		engineLog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	engineLog.Info("Successfully connected to Redis")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	engineLog.Info("Scheduler ready - materializing schedules and watching reminders")

	// Wait for shutdown signal
	sig := <-sigChan
	engineLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)

	// Cancel context to stop the materialization and reminder loops
	cancel()

	// Give in-flight passes time to finish
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		engineLog.Warn("Shutdown timed out waiting for loops to stop")
	}

	m := eng.Metrics()
	engineLog.Info("Scheduler shut down successfully",
		"occurrences_created", m.OccurrencesCreated,
		"reminders_sent", m.RemindersSent)
}
