package rule

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one logical calendar slot. The same slot must never be
// materialized twice, so identity is the (rule, date) pair rather than a
// generated ID.
type Key struct {
	RuleID string
	Date   time.Time
}

// String renders the key as "ruleID|YYYY-MM-DD"
func (k Key) String() string {
	return k.RuleID + "|" + k.Date.Format(DateLayout)
}

// ParseKey parses a "ruleID|YYYY-MM-DD" string back into a Key
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndex(s, "|")
	if idx < 0 {
		return Key{}, fmt.Errorf("invalid occurrence key %q", s)
	}
	date, err := time.ParseInLocation(DateLayout, s[idx+1:], time.UTC)
	if err != nil {
		return Key{}, fmt.Errorf("invalid occurrence key %q: %w", s, err)
	}
	return Key{RuleID: s[:idx], Date: date}, nil
}

// Occurrence is one concrete calendar instance derived from a rule. It is
// a value object: all fields are inherited verbatim from the rule at
// generation time, so its content is fully determined by its Key.
type Occurrence struct {
	// RuleID is the owning rule
	RuleID string `json:"rule_id"`
	// Date is the calendar day of the occurrence (midnight)
	Date time.Time `json:"date"`
	// Title is copied from the rule at generation time
	Title string `json:"title"`
	// Description is copied from the rule at generation time
	Description string `json:"description,omitempty"`
	// Category is copied from the rule at generation time
	Category string `json:"category,omitempty"`
	// StartTime is the wall-clock start
	StartTime TimeOfDay `json:"start_time"`
	// EndTime is the wall-clock end
	EndTime TimeOfDay `json:"end_time"`
}

// Key returns the identity of the occurrence
func (o Occurrence) Key() Key {
	return Key{RuleID: o.RuleID, Date: o.Date}
}

// StartAt returns the full start instant (date + start time)
func (o Occurrence) StartAt() time.Time {
	return o.StartTime.On(o.Date)
}

// EndAt returns the full end instant (date + end time)
func (o Occurrence) EndAt() time.Time {
	return o.EndTime.On(o.Date)
}

// Horizon is the bounded date range one generation pass covers. Both ends
// are inclusive calendar days.
type Horizon struct {
	Start time.Time
	End   time.Time
}

// NewHorizon builds a horizon from two instants, truncated to days
func NewHorizon(start, end time.Time) Horizon {
	return Horizon{Start: Midnight(start), End: Midnight(end)}
}

// Validate checks that the horizon is well-formed
func (h Horizon) Validate() error {
	if h.Start.IsZero() || h.End.IsZero() {
		return fmt.Errorf("horizon bounds cannot be zero")
	}
	if h.End.Before(h.Start) {
		return fmt.Errorf("horizon end %s is before start %s",
			h.End.Format(DateLayout), h.Start.Format(DateLayout))
	}
	return nil
}

// Contains reports whether the calendar day d falls within the horizon
func (h Horizon) Contains(d time.Time) bool {
	d = Midnight(d)
	return !d.Before(h.Start) && !d.After(h.End)
}
