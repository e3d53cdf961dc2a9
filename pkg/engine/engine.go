// Package engine composes the recurring-schedule core: rule storage,
// occurrence generation and materialization, reminders, and calendar
// export.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/daybook-app/cadence/internal/clock"
	"github.com/daybook-app/cadence/internal/config"
	"github.com/daybook-app/cadence/internal/export"
	"github.com/daybook-app/cadence/internal/logger"
	"github.com/daybook-app/cadence/internal/materialize"
	"github.com/daybook-app/cadence/internal/metrics"
	"github.com/daybook-app/cadence/internal/remind"
	"github.com/daybook-app/cadence/internal/rule"
	"github.com/daybook-app/cadence/internal/store"
)

// Engine wires the schedule core together behind one façade
type Engine struct {
	cfg           *config.Config
	rules         store.RuleStore
	occurrences   store.OccurrenceStore
	notifications store.NotificationStore
	materializer  *materialize.Manager
	reminder      *remind.Scheduler
	exporter      *export.Exporter
	clk           clock.Clock
	log           logger.Logger
	closer        io.Closer
}

// New connects to Redis and builds a fully wired engine
func New(cfg *config.Config) (*Engine, error) {
	redisStore, err := store.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	e, err := NewWithStores(cfg, redisStore, redisStore, redisStore, clock.System{})
	if err != nil {
		redisStore.Close()
		return nil, err
	}
	e.closer = redisStore
	e.reminder.SetTickLock(redisStore.Client())
	return e, nil
}

// NewWithStores builds an engine over explicit collaborators. Tests use
// this with miniredis-backed stores and a fixed clock.
func NewWithStores(cfg *config.Config, rules store.RuleStore, occurrences store.OccurrenceStore, notifications store.NotificationStore, clk clock.Clock) (*Engine, error) {
	reminder := remind.NewScheduler(occurrences, notifications, clk, cfg.ReminderInterval)
	reminder.SetLookahead(cfg.ReminderLookahead)
	reminder.SetLockTTL(cfg.LockTTL)
	if cfg.ReminderCron != "" {
		if err := reminder.UseCron(cfg.ReminderCron); err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:           cfg,
		rules:         rules,
		occurrences:   occurrences,
		notifications: notifications,
		materializer:  materialize.NewManager(rules, occurrences, clk),
		reminder:      reminder,
		exporter:      export.NewExporter(rules, occurrences),
		clk:           clk,
		log:           logger.Default().WithComponent(logger.ComponentEngine),
	}, nil
}

// Close releases the backing store connection
func (e *Engine) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}

// SaveRule validates and persists a rule, then materializes it over the
// configured horizon so its occurrences are queryable immediately.
func (e *Engine) SaveRule(ctx context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Touch()

	if err := e.rules.Put(ctx, r); err != nil {
		return err
	}

	// The stored cursor tracks progress for whatever definition was last
	// materialized. An edit must regenerate the whole horizon, not
	// short-circuit behind the old definition's cursor.
	if err := e.rules.ResetCursor(ctx, r.ID); err != nil {
		return fmt.Errorf("rule saved but cursor reset failed: %w", err)
	}

	if r.IsActive {
		if _, err := e.materializer.MaterializeRule(ctx, r, e.horizon()); err != nil {
			return fmt.Errorf("rule saved but materialization failed: %w", err)
		}
	}
	return nil
}

// DeactivateRule flips a rule inactive and prunes its future occurrences.
// Past occurrences stay as historical record.
func (e *Engine) DeactivateRule(ctx context.Context, id string) error {
	r, err := e.rules.Get(ctx, id)
	if err != nil {
		return err
	}
	if !r.IsActive {
		return nil
	}

	r.IsActive = false
	r.Touch()
	if err := e.rules.Put(ctx, r); err != nil {
		return err
	}

	_, err = e.materializer.PruneFuture(ctx, id)
	return err
}

// DeleteRule removes a rule and every occurrence it ever produced
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if _, err := e.occurrences.DeleteFrom(ctx, id, time.Time{}); err != nil {
		return err
	}
	return e.rules.Delete(ctx, id)
}

// GetRule retrieves a rule by ID
func (e *Engine) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	return e.rules.Get(ctx, id)
}

// MaterializePass materializes every active rule over the configured
// horizon, with bounded concurrency. A failing rule - validation or store
// - is logged and skipped; the rest of the batch is unaffected.
func (e *Engine) MaterializePass(ctx context.Context) error {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return err
	}

	h := e.horizon()
	sem := make(chan struct{}, e.cfg.MaterializeConcurrency)
	var wg sync.WaitGroup

	for _, r := range rules {
		wg.Add(1)
		sem <- struct{}{}
		r := r
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := e.materializer.MaterializeRule(ctx, r, h); err != nil {
				var vErr *rule.ValidationError
				if errors.As(err, &vErr) {
					e.log.Warn("Skipping invalid rule", "rule_id", r.ID, "error", err)
					return
				}
				e.log.Error("Failed to materialize rule", "rule_id", r.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	e.log.Debug("Materialization pass completed",
		"rules", len(rules),
		"horizon_end", h.End.Format(rule.DateLayout))
	return nil
}

// Run starts the materialization loop and the reminder scheduler and
// blocks until the context is cancelled. In-flight work completes before
// Run returns.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.reminder.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		// First pass immediately, then on the interval.
		if err := e.MaterializePass(ctx); err != nil {
			e.log.Error("Materialization pass failed", "error", err)
		}

		ticker := time.NewTicker(e.cfg.MaterializeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.log.Info("Materialization loop stopping")
				return
			case <-ticker.C:
				if err := e.MaterializePass(ctx); err != nil {
					e.log.Error("Materialization pass failed", "error", err)
				}
			}
		}
	}()

	wg.Wait()
}

// RemindNow runs a single reminder tick outside the loop, for tooling and
// tests
func (e *Engine) RemindNow(ctx context.Context) {
	e.reminder.Tick(ctx)
}

// Unread returns unread notifications, newest first
func (e *Engine) Unread(ctx context.Context) ([]*store.Notification, error) {
	return e.notifications.Unread(ctx)
}

// MarkRead flags a notification as read
func (e *Engine) MarkRead(ctx context.Context, id string) error {
	return e.notifications.MarkRead(ctx, id)
}

// ExportICS writes the materialized schedule for [from, to] as iCalendar
func (e *Engine) ExportICS(ctx context.Context, w io.Writer, from, to time.Time) error {
	return e.exporter.WriteICS(ctx, w, from, to)
}

// Metrics returns a snapshot of engine counters
func (e *Engine) Metrics() metrics.Snapshot {
	return metrics.Default().Snapshot()
}

// horizon is the materialization window anchored at today
func (e *Engine) horizon() rule.Horizon {
	today := rule.Midnight(e.clk.Now())
	return rule.Horizon{Start: today, End: today.AddDate(0, 0, e.cfg.HorizonDays)}
}
