// Package metrics tracks engine-wide counters in memory.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks system-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	occurrencesGenerated atomic.Int64
	occurrencesCreated   atomic.Int64
	occurrencesDeleted   atomic.Int64
	rulesMaterialized    atomic.Int64
	materializeErrors    atomic.Int64
	remindersSent        atomic.Int64
	remindersSuppressed  atomic.Int64
	reminderErrors       atomic.Int64
	ticksCompleted       atomic.Int64

	mu            sync.RWMutex
	remindersBy   map[string]int64 // per lead-time bucket
	totalTickTime time.Duration
	startTime     time.Time
}

// Snapshot represents a point-in-time view of engine metrics
type Snapshot struct {
	OccurrencesGenerated int64            `json:"occurrences_generated"`
	OccurrencesCreated   int64            `json:"occurrences_created"`
	OccurrencesDeleted   int64            `json:"occurrences_deleted"`
	RulesMaterialized    int64            `json:"rules_materialized"`
	MaterializeErrors    int64            `json:"materialize_errors"`
	RemindersSent        int64            `json:"reminders_sent"`
	RemindersSuppressed  int64            `json:"reminders_suppressed"`
	ReminderErrors       int64            `json:"reminder_errors"`
	RemindersByBucket    map[string]int64 `json:"reminders_by_bucket"`
	TicksCompleted       int64            `json:"ticks_completed"`
	AvgTickDuration      time.Duration    `json:"avg_tick_duration"`
	Uptime               time.Duration    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		remindersBy: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// AddGenerated records occurrences produced by the generator
func (c *Collector) AddGenerated(n int) {
	c.occurrencesGenerated.Add(int64(n))
}

// AddCreated records occurrences written to the store
func (c *Collector) AddCreated(n int) {
	c.occurrencesCreated.Add(int64(n))
}

// AddDeleted records occurrences removed from the store
func (c *Collector) AddDeleted(n int) {
	c.occurrencesDeleted.Add(int64(n))
}

// RuleMaterialized records one completed materialization pass for a rule
func (c *Collector) RuleMaterialized() {
	c.rulesMaterialized.Add(1)
}

// MaterializeError records a failed materialization pass
func (c *Collector) MaterializeError() {
	c.materializeErrors.Add(1)
}

// ReminderSent records an emitted reminder for the given bucket
func (c *Collector) ReminderSent(bucket string) {
	c.remindersSent.Add(1)
	c.mu.Lock()
	c.remindersBy[bucket]++
	c.mu.Unlock()
}

// ReminderSuppressed records a reminder skipped by dedup
func (c *Collector) ReminderSuppressed() {
	c.remindersSuppressed.Add(1)
}

// ReminderError records a per-occurrence reminder failure
func (c *Collector) ReminderError() {
	c.reminderErrors.Add(1)
}

// TickCompleted records one finished reminder tick and its duration
func (c *Collector) TickCompleted(d time.Duration) {
	c.ticksCompleted.Add(1)
	c.mu.Lock()
	c.totalTickTime += d
	c.mu.Unlock()
}

// Snapshot returns a consistent view of the current metrics
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byBucket := make(map[string]int64, len(c.remindersBy))
	for k, v := range c.remindersBy {
		byBucket[k] = v
	}

	ticks := c.ticksCompleted.Load()
	var avgTick time.Duration
	if ticks > 0 {
		avgTick = c.totalTickTime / time.Duration(ticks)
	}

	return Snapshot{
		OccurrencesGenerated: c.occurrencesGenerated.Load(),
		OccurrencesCreated:   c.occurrencesCreated.Load(),
		OccurrencesDeleted:   c.occurrencesDeleted.Load(),
		RulesMaterialized:    c.rulesMaterialized.Load(),
		MaterializeErrors:    c.materializeErrors.Load(),
		RemindersSent:        c.remindersSent.Load(),
		RemindersSuppressed:  c.remindersSuppressed.Load(),
		ReminderErrors:       c.reminderErrors.Load(),
		RemindersByBucket:    byBucket,
		TicksCompleted:       ticks,
		AvgTickDuration:      avgTick,
		Uptime:               time.Since(c.startTime),
	}
}

// Reset clears all counters, for tests
func (c *Collector) Reset() {
	c.occurrencesGenerated.Store(0)
	c.occurrencesCreated.Store(0)
	c.occurrencesDeleted.Store(0)
	c.rulesMaterialized.Store(0)
	c.materializeErrors.Store(0)
	c.remindersSent.Store(0)
	c.remindersSuppressed.Store(0)
	c.reminderErrors.Store(0)
	c.ticksCompleted.Store(0)

	c.mu.Lock()
	c.remindersBy = make(map[string]int64)
	c.totalTickTime = 0
	c.startTime = time.Now()
	c.mu.Unlock()
}
