// Package rule defines recurrence rules and the occurrences derived from them.
package rule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frequency represents how often a rule repeats
type Frequency string

const (
	// FrequencyDaily repeats every N days
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats on selected weekdays every N weeks
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly repeats on a fixed day of the month every N months
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly repeats on the start date's month and day every N years
	FrequencyYearly Frequency = "yearly"
)

// DateLayout is the canonical encoding of an occurrence date
const DateLayout = "2006-01-02"

// Rule describes a repeating schedule. All times are naive wall-clock
// values in a single zone; the engine never converts between zones.
type Rule struct {
	// ID is the unique identifier for the rule
	ID string `json:"id"`
	// Title is a user-facing name, not interpreted by the engine
	Title string `json:"title"`
	// Description is an optional user-facing description
	Description string `json:"description,omitempty"`
	// Category is an opaque grouping label
	Category string `json:"category,omitempty"`
	// StartDate is the inclusive lower bound for generation (midnight)
	StartDate time.Time `json:"start_date"`
	// EndDate is the inclusive upper bound; nil means unbounded
	EndDate *time.Time `json:"end_date,omitempty"`
	// StartTime is the wall-clock start of each occurrence
	StartTime TimeOfDay `json:"start_time"`
	// EndTime is the wall-clock end of each occurrence; must be after StartTime
	EndTime TimeOfDay `json:"end_time"`
	// Frequency is the repetition unit
	Frequency Frequency `json:"frequency"`
	// Interval means "every N units of Frequency"; at least 1
	Interval int `json:"interval"`
	// DaysOfWeek selects weekdays for weekly rules; ignored otherwise
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	// DayOfMonth selects the day for monthly rules (1-31); ignored otherwise
	DayOfMonth int `json:"day_of_month,omitempty"`
	// IsActive gates new generation; inactive rules keep past occurrences
	IsActive bool `json:"is_active"`
	// CreatedAt is when the rule was created
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the rule was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a rule with a generated ID, interval 1, and active state.
// Callers set frequency-specific fields (DaysOfWeek, DayOfMonth) before
// validating.
func New(title string, freq Frequency, startDate time.Time, startTime, endTime TimeOfDay) *Rule {
	now := time.Now()
	return &Rule{
		ID:        uuid.New().String(),
		Title:     title,
		StartDate: Midnight(startDate),
		StartTime: startTime,
		EndTime:   endTime,
		Frequency: freq,
		Interval:  1,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidationError reports a malformed rule. It is fatal to the single
// generation call that encountered it and is never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s %s", e.Field, e.Reason)
}

// Validate checks the structural invariants of the rule. Generation must
// not begin against a rule that fails validation.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "cannot be empty"}
	}
	if r.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "cannot be zero"}
	}
	if r.EndDate != nil && Midnight(*r.EndDate).Before(Midnight(r.StartDate)) {
		return &ValidationError{Field: "end_date", Reason: "is before start_date"}
	}
	if !r.EndTime.After(r.StartTime) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if r.Interval < 1 {
		return &ValidationError{Field: "interval", Reason: "must be at least 1"}
	}

	switch r.Frequency {
	case FrequencyDaily, FrequencyYearly:
		// No frequency-specific fields.
	case FrequencyWeekly:
		if len(r.DaysOfWeek) == 0 {
			return &ValidationError{Field: "days_of_week", Reason: "required for weekly rules"}
		}
		for _, d := range r.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				return &ValidationError{Field: "days_of_week", Reason: fmt.Sprintf("contains invalid weekday %d", d)}
			}
		}
	case FrequencyMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return &ValidationError{Field: "day_of_month", Reason: "must be between 1 and 31"}
		}
	default:
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown value %q", r.Frequency)}
	}

	return nil
}

// Bound returns the inclusive upper generation bound for the given horizon
// end: the earlier of the rule's end date and the horizon end.
func (r *Rule) Bound(horizonEnd time.Time) time.Time {
	bound := Midnight(horizonEnd)
	if r.EndDate != nil {
		if end := Midnight(*r.EndDate); end.Before(bound) {
			bound = end
		}
	}
	return bound
}

// Touch updates the UpdatedAt timestamp
func (r *Rule) Touch() {
	r.UpdatedAt = time.Now()
}

// Midnight truncates a time to the start of its calendar day, preserving
// the location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Date builds a midnight time for the given calendar day in UTC, the
// engine's canonical naive-time location.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
