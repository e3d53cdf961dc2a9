// Package remind evaluates lead-time buckets for upcoming occurrences and
// emits each reminder exactly once.
package remind

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/daybook-app/cadence/internal/clock"
	engerrors "github.com/daybook-app/cadence/internal/errors"
	"github.com/daybook-app/cadence/internal/logger"
	"github.com/daybook-app/cadence/internal/metrics"
	"github.com/daybook-app/cadence/internal/rule"
	"github.com/daybook-app/cadence/internal/store"
)

const tickLockKey = "cadence:reminder_lock"

// Scheduler is a long-lived periodic process emitting reminders for
// occurrences inside a lookahead window. A single instance is assumed;
// the optional Redis tick lock makes an accidental second instance skip
// ticks instead of doubling reminders.
type Scheduler struct {
	occurrences   store.OccurrenceStore
	notifications store.NotificationStore
	clk           clock.Clock
	client        *redis.Client // nil disables the tick lock
	interval      time.Duration
	cronSchedule  cron.Schedule
	lookahead     time.Duration
	lockTTL       time.Duration
	log           logger.Logger
	collector     *metrics.Collector
}

// NewScheduler creates a reminder scheduler ticking at the given interval
func NewScheduler(occurrences store.OccurrenceStore, notifications store.NotificationStore, clk clock.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		occurrences:   occurrences,
		notifications: notifications,
		clk:           clk,
		interval:      interval,
		lookahead:     30 * time.Hour, // covers the widest bucket (28h) with slack
		lockTTL:       60 * time.Second,
		log:           logger.Default().WithComponent(logger.ComponentReminder),
		collector:     metrics.Default(),
	}
}

// SetLockTTL sets the tick lock TTL (for testing or tuning)
func (s *Scheduler) SetLockTTL(ttl time.Duration) {
	s.lockTTL = ttl
}

// SetLookahead sets how far ahead of "now" occurrences are considered
func (s *Scheduler) SetLookahead(d time.Duration) {
	s.lookahead = d
}

// SetTickLock enables the distributed tick lock on the given client
func (s *Scheduler) SetTickLock(client *redis.Client) {
	s.client = client
}

// UseCron replaces the fixed interval with a cron expression (standard
// 5-field), for deployments that want wall-clock-aligned ticks like
// "*/15 * * * *".
func (s *Scheduler) UseCron(spec string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid reminder cron expression %q: %w", spec, err)
	}
	s.cronSchedule = schedule
	return nil
}

// Start begins the reminder loop. Cancellation is cooperative: the stop
// signal is checked between ticks, and an in-flight tick always completes
// before the loop exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Reminder scheduler started",
		"interval", s.interval,
		"lookahead", s.lookahead,
		"cron", s.cronSchedule != nil)

	if s.cronSchedule != nil {
		s.runCron(ctx)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Reminder scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// nextCronDelay is the time until the schedule's next fire, measured on
// the scheduler's clock so cron mode behaves under a synthetic clock too
func (s *Scheduler) nextCronDelay() time.Duration {
	now := s.clk.Now()
	return s.cronSchedule.Next(now).Sub(now)
}

// runCron drives ticks from the cron schedule instead of a fixed interval
func (s *Scheduler) runCron(ctx context.Context) {
	for {
		timer := time.NewTimer(s.nextCronDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("Reminder scheduler stopping")
			return
		case <-timer.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one full evaluation pass: fetch the window, evaluate buckets,
// write new reminders. Each invocation completes fully before the next
// scheduled tick begins; a skipped or delayed tick leaves no gap because
// the next one re-derives bucket membership from "now".
func (s *Scheduler) Tick(ctx context.Context) {
	defer engerrors.Recover(func(p *engerrors.PanicError) {
		s.log.Error("Reminder tick panicked",
			"panic_value", p.Value,
			"stack_trace", p.Stack)
	})

	started := s.clk.Now()

	if s.client != nil {
		lock, err := store.AcquireLock(ctx, s.client, tickLockKey, s.lockTTL)
		if err != nil {
			s.log.Error("Failed to acquire reminder tick lock", "error", err)
			return
		}
		if lock == nil {
			s.log.Debug("Reminder tick already locked by another instance")
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				s.log.Error("Failed to release reminder tick lock", "error", err)
			}
		}()

		// A slow pass over a large window can outlive the lease, so the
		// lock is renewed in the background until the tick returns.
		stop := make(chan struct{})
		defer close(stop)
		go s.extendLock(ctx, lock, stop)
	}

	now := s.clk.Now()
	window, err := s.occurrences.Window(ctx, now, now.Add(s.lookahead))
	if err != nil {
		s.log.Error("Failed to read occurrence window", "error", err)
		return
	}

	var sent, suppressed int
	for _, occ := range window {
		emitted, err := s.remindOne(ctx, occ, now)
		if err != nil {
			// Per-occurrence isolation: one bad record must not starve
			// reminders for all others. Retried next tick.
			s.collector.ReminderError()
			s.log.Error("Failed to emit reminder",
				"rule_id", occ.RuleID,
				"date", occ.Date.Format(rule.DateLayout),
				"error", err)
			continue
		}
		switch emitted {
		case emittedSent:
			sent++
		case emittedSuppressed:
			suppressed++
		}
	}

	s.collector.TickCompleted(s.clk.Now().Sub(started))
	if sent > 0 {
		s.log.Info("Reminder tick completed",
			"window", len(window),
			"sent", sent,
			"suppressed", suppressed)
	} else {
		s.log.Debug("Reminder tick completed",
			"window", len(window),
			"suppressed", suppressed)
	}
}

// extendLock renews the tick lock lease at half-TTL cadence until the
// tick finishes. A failed extension means the lease expired and another
// instance may now hold the lock; the extender stops and the in-flight
// pass finishes, still safe because every reminder write is deduplicated
// by its own claim.
func (s *Scheduler) extendLock(ctx context.Context, lock *store.Lock, stop <-chan struct{}) {
	ticker := time.NewTicker(s.lockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, s.lockTTL); err != nil {
				s.log.Warn("Failed to extend reminder tick lock", "error", err)
				return
			}
		}
	}
}

type emitResult int

const (
	emittedNothing emitResult = iota
	emittedSent
	emittedSuppressed
)

// remindOne evaluates a single occurrence and emits at most one reminder.
// The (occurrence, bucket) dedup claim and the notification are one
// atomic store write, so a failure persists neither and the next tick
// retries from scratch.
func (s *Scheduler) remindOne(ctx context.Context, occ rule.Occurrence, now time.Time) (emitResult, error) {
	bucket, ok := Evaluate(now, occ.StartAt())
	if !ok {
		return emittedNothing, nil
	}

	n := &store.Notification{
		ID:            uuid.New().String(),
		OccurrenceKey: occ.Key().String(),
		Bucket:        string(bucket),
		Message:       Message(bucket, now, occ),
		CreatedAt:     now,
	}
	claimed, err := s.notifications.CreateReminder(ctx, n, occ.Key(), string(bucket))
	if err != nil {
		return emittedNothing, err
	}
	if !claimed {
		s.collector.ReminderSuppressed()
		return emittedSuppressed, nil
	}

	s.collector.ReminderSent(string(bucket))
	s.log.Debug("Reminder emitted",
		"rule_id", occ.RuleID,
		"date", occ.Date.Format(rule.DateLayout),
		"bucket", bucket)
	return emittedSent, nil
}
