// Package materialize converges the occurrence store to the generator's
// output for a rule and horizon. The diff is keyed by (rule, date), so
// re-running a pass never duplicates a calendar slot.
package materialize

import (
	"context"
	"sync"
	"time"

	"github.com/daybook-app/cadence/internal/clock"
	"github.com/daybook-app/cadence/internal/generate"
	"github.com/daybook-app/cadence/internal/logger"
	"github.com/daybook-app/cadence/internal/metrics"
	"github.com/daybook-app/cadence/internal/rule"
	"github.com/daybook-app/cadence/internal/store"
)

// Plan is the minimal set of store operations that converges the stored
// occurrences to the generator output. There is no update operation: an
// occurrence's content is fully determined by its key plus the rule, so
// content drift is corrected by delete and recreate.
type Plan struct {
	ToCreate []rule.Occurrence
	ToDelete []rule.Key
}

// Empty reports whether the plan requires no store writes
func (p Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToDelete) == 0
}

// Diff computes the plan converging current to target, keyed by
// (rule, date). Pure; exported so the idempotency property can be tested
// without a store.
func Diff(target, current []rule.Occurrence) Plan {
	targetByKey := make(map[rule.Key]rule.Occurrence, len(target))
	for _, o := range target {
		targetByKey[o.Key()] = o
	}
	currentKeys := make(map[rule.Key]bool, len(current))
	for _, o := range current {
		currentKeys[o.Key()] = true
	}

	var plan Plan
	for _, o := range target {
		if !currentKeys[o.Key()] {
			plan.ToCreate = append(plan.ToCreate, o)
		}
	}
	for _, o := range current {
		if _, ok := targetByKey[o.Key()]; !ok {
			plan.ToDelete = append(plan.ToDelete, o.Key())
		}
	}
	return plan
}

// Manager materializes rules against the occurrence store
type Manager struct {
	rules       store.RuleStore
	occurrences store.OccurrenceStore
	clk         clock.Clock
	log         logger.Logger
	collector   *metrics.Collector

	// Per-rule locks: concurrent materialization of different rules is
	// independent, but two passes over the same rule would diff against
	// stale snapshots and both decide to create the same slot.
	mu        sync.Mutex
	ruleLocks map[string]*sync.Mutex
}

// NewManager creates a materialization manager
func NewManager(rules store.RuleStore, occurrences store.OccurrenceStore, clk clock.Clock) *Manager {
	return &Manager{
		rules:       rules,
		occurrences: occurrences,
		clk:         clk,
		log:         logger.Default().WithComponent(logger.ComponentMaterializer),
		collector:   metrics.Default(),
	}
}

// lockRule returns the mutex serializing passes over the given rule
func (m *Manager) lockRule(ruleID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ruleLocks == nil {
		m.ruleLocks = make(map[string]*sync.Mutex)
	}
	l, ok := m.ruleLocks[ruleID]
	if !ok {
		l = &sync.Mutex{}
		m.ruleLocks[ruleID] = l
	}
	return l
}

// Materialize converges the store to the generator output for r over h.
// The cursor - the end of the last fully materialized horizon - is passed
// in and returned explicitly rather than mutated on the rule, so the call
// has no hidden state. A horizon entirely at or below the cursor is a
// no-op short-circuit: generation and diffing are skipped.
//
// The cursor only advances after every store write has succeeded. A
// partial failure leaves it untouched, and the next invocation re-derives
// the same plan minus whatever was already applied - the diff, not store
// atomicity, is what makes the retry safe.
func (m *Manager) Materialize(ctx context.Context, r *rule.Rule, h rule.Horizon, cursor time.Time) (Plan, time.Time, error) {
	lock := m.lockRule(r.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx = logger.WithRuleID(ctx, r.ID)

	if !r.IsActive {
		// Inactive rules generate nothing; already-materialized
		// occurrences are handled by PruneFuture, not here.
		return Plan{}, cursor, nil
	}

	if !cursor.IsZero() && !h.End.After(cursor) && !h.Start.Before(rule.Midnight(r.StartDate)) {
		m.log.DebugContext(ctx, "Horizon already materialized, skipping",
			"cursor", cursor.Format(rule.DateLayout),
			"horizon_end", h.End.Format(rule.DateLayout))
		return Plan{}, cursor, nil
	}

	target, err := generate.Occurrences(r, h)
	if err != nil {
		m.collector.MaterializeError()
		return Plan{}, cursor, err
	}
	m.collector.AddGenerated(len(target))

	current, err := m.occurrences.Range(ctx, r.ID, h)
	if err != nil {
		m.collector.MaterializeError()
		return Plan{}, cursor, err
	}

	plan := Diff(target, current)
	if plan.Empty() {
		return plan, advance(cursor, h), nil
	}

	if err := m.occurrences.CreateBatch(ctx, plan.ToCreate); err != nil {
		m.collector.MaterializeError()
		return Plan{}, cursor, err
	}
	if err := m.occurrences.DeleteBatch(ctx, plan.ToDelete); err != nil {
		// Creates may already be applied; the cursor stays put so the
		// next pass retries, and the diff makes the retry a no-op for
		// everything that did land.
		m.collector.MaterializeError()
		return Plan{}, cursor, err
	}

	m.collector.AddCreated(len(plan.ToCreate))
	m.collector.AddDeleted(len(plan.ToDelete))
	m.collector.RuleMaterialized()

	m.log.InfoContext(ctx, "Materialized rule",
		"created", len(plan.ToCreate),
		"deleted", len(plan.ToDelete),
		"horizon_start", h.Start.Format(rule.DateLayout),
		"horizon_end", h.End.Format(rule.DateLayout))

	return plan, advance(cursor, h), nil
}

func advance(cursor time.Time, h rule.Horizon) time.Time {
	if h.End.After(cursor) {
		return h.End
	}
	return cursor
}

// MaterializeRule runs a full store-backed pass: it reads the rule's
// persisted cursor, materializes, and persists the advanced cursor. A
// cursor write failure is logged but not fatal - the worst case is a
// redundant (and idempotent) re-pass next time.
func (m *Manager) MaterializeRule(ctx context.Context, r *rule.Rule, h rule.Horizon) (Plan, error) {
	cursor, err := m.rules.Cursor(ctx, r.ID)
	if err != nil {
		return Plan{}, err
	}

	plan, newCursor, err := m.Materialize(ctx, r, h, cursor)
	if err != nil {
		return Plan{}, err
	}

	if newCursor.After(cursor) {
		if err := m.rules.AdvanceCursor(ctx, r.ID, newCursor); err != nil {
			m.log.WarnContext(logger.WithRuleID(ctx, r.ID),
				"Failed to persist cursor", "error", err)
		}
	}
	return plan, nil
}

// PruneFuture removes a deactivated rule's occurrences strictly after
// today. Past occurrences, today's included, stay as historical record.
func (m *Manager) PruneFuture(ctx context.Context, ruleID string) (int, error) {
	lock := m.lockRule(ruleID)
	lock.Lock()
	defer lock.Unlock()

	tomorrow := rule.Midnight(m.clk.Now()).AddDate(0, 0, 1)
	deleted, err := m.occurrences.DeleteFrom(ctx, ruleID, tomorrow)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		m.collector.AddDeleted(deleted)
		m.log.InfoContext(logger.WithRuleID(ctx, ruleID),
			"Pruned future occurrences of deactivated rule", "deleted", deleted)
	}
	return deleted, nil
}
