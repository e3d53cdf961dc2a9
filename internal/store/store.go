// Package store persists rules, occurrences, and notifications. The
// engine talks to the interfaces here; the Redis implementation is the
// one the daemon runs against.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daybook-app/cadence/internal/rule"
)

var (
	// ErrUnavailable indicates a failed read or write against the
	// backing store. The failing operation is safe to retry on the next
	// scheduled invocation.
	ErrUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("not found")
)

// RuleStore persists recurrence rules and their materialization cursors
type RuleStore interface {
	// Put creates or replaces a rule
	Put(ctx context.Context, r *rule.Rule) error

	// Get retrieves a rule by ID; ErrNotFound when absent
	Get(ctx context.Context, id string) (*rule.Rule, error)

	// ListActive returns all rules whose IsActive flag is set
	ListActive(ctx context.Context) ([]*rule.Rule, error)

	// Cursor returns how far generation has already progressed for the
	// rule: the end of the last fully materialized horizon. Zero time
	// when the rule has never been materialized.
	Cursor(ctx context.Context, ruleID string) (time.Time, error)

	// AdvanceCursor records that the horizon up to the given day has
	// been fully materialized
	AdvanceCursor(ctx context.Context, ruleID string, to time.Time) error

	// ResetCursor clears the rule's cursor so the next pass regenerates
	// the whole horizon. A persisted cursor describes progress for the
	// definition that was materialized; after an edit it no longer does.
	ResetCursor(ctx context.Context, ruleID string) error

	// Delete removes a rule and its cursor
	Delete(ctx context.Context, id string) error
}

// OccurrenceStore persists materialized occurrences
type OccurrenceStore interface {
	// Range returns the rule's occurrences whose date falls within the
	// horizon, sorted ascending by date
	Range(ctx context.Context, ruleID string, h rule.Horizon) ([]rule.Occurrence, error)

	// CreateBatch persists the given occurrences
	CreateBatch(ctx context.Context, occurrences []rule.Occurrence) error

	// DeleteBatch removes occurrences by key
	DeleteBatch(ctx context.Context, keys []rule.Key) error

	// Window returns all occurrences, across every rule, whose start
	// instant falls within [from, to], sorted by (start instant, rule ID)
	Window(ctx context.Context, from, to time.Time) ([]rule.Occurrence, error)

	// DeleteFrom removes the rule's occurrences dated on or after the
	// given day, returning how many were removed. Used when a rule is
	// deactivated: the past stays as historical record.
	DeleteFrom(ctx context.Context, ruleID string, from time.Time) (int, error)
}

// Notification is one reminder delivered to the user. The UI reads and
// marks these; the engine only writes them.
type Notification struct {
	// ID is the unique identifier for the notification
	ID string `json:"id"`
	// OccurrenceKey is the "ruleID|date" slot this reminder is about
	OccurrenceKey string `json:"occurrence_key"`
	// Bucket is the lead-time bucket that fired ("imminent", "near", "day_ahead")
	Bucket string `json:"bucket"`
	// Message is the user-facing text; purely presentational, never used
	// for dedup
	Message string `json:"message"`
	// CreatedAt is when the reminder was emitted
	CreatedAt time.Time `json:"created_at"`
	// Read marks whether the user has seen the notification
	Read bool `json:"read"`
}

// NotificationStore persists reminders and owns the
// (occurrenceKey, bucket) uniqueness invariant
type NotificationStore interface {
	// CreateReminder persists the notification if and only if no
	// reminder has been recorded for the (occurrence, bucket) slot yet.
	// The dedup claim and the notification land atomically: on failure
	// neither is persisted, so the next tick retries cleanly. Returns
	// false when the slot was already claimed.
	CreateReminder(ctx context.Context, n *Notification, key rule.Key, bucket string) (bool, error)

	// Unread returns unread notifications, newest first
	Unread(ctx context.Context) ([]*Notification, error)

	// MarkRead flags a notification as read
	MarkRead(ctx context.Context, id string) error
}

// unavailable wraps a backend error so callers can match ErrUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
