// Package generate expands recurrence rules into concrete occurrences
// over a bounded horizon. Generation is pure and deterministic: the same
// rule and horizon always yield the same sequence, so callers may re-run
// it freely.
package generate

import (
	"sort"
	"time"

	"github.com/daybook-app/cadence/internal/rule"
)

// Occurrences expands r over h and returns the occurrences sorted
// ascending by date. The sequence is bounded by the earlier of the rule's
// end date and the horizon end. An invalid rule or horizon fails before
// any iteration begins; output is never partial.
func Occurrences(r *rule.Rule, h rule.Horizon) ([]rule.Occurrence, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	start := rule.Midnight(r.StartDate)
	bound := r.Bound(h.End)
	if bound.Before(start) {
		return nil, nil
	}

	// Lower emission bound: the later of the horizon start and the
	// rule's own start date.
	lower := h.Start
	if start.After(lower) {
		lower = start
	}
	if lower.After(bound) {
		return nil, nil
	}

	var dates []time.Time
	switch r.Frequency {
	case rule.FrequencyDaily:
		dates = dailyDates(start, lower, bound, r.Interval)
	case rule.FrequencyWeekly:
		dates = weeklyDates(start, lower, bound, r.Interval, r.DaysOfWeek)
	case rule.FrequencyMonthly:
		dates = monthlyDates(start, lower, bound, r.Interval, r.DayOfMonth)
	case rule.FrequencyYearly:
		dates = yearlyDates(start, lower, bound, r.Interval)
	}

	occurrences := make([]rule.Occurrence, 0, len(dates))
	for _, d := range dates {
		occurrences = append(occurrences, rule.Occurrence{
			RuleID:      r.ID,
			Date:        d,
			Title:       r.Title,
			Description: r.Description,
			Category:    r.Category,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
		})
	}
	return occurrences, nil
}

// dailyDates steps by interval days from the rule's start date. The first
// emitted date is fast-forwarded to the lower bound rather than iterated
// from the start, so cost is proportional to the output.
func dailyDates(start, lower, bound time.Time, interval int) []time.Time {
	var dates []time.Time

	steps := daysBetween(start, lower)
	if steps < 0 {
		steps = 0
	}
	// Round up to the next step that lands on the cadence.
	if rem := steps % interval; rem != 0 {
		steps += interval - rem
	}

	for d := start.AddDate(0, 0, steps); !d.After(bound); d = d.AddDate(0, 0, interval) {
		dates = append(dates, d)
	}
	return dates
}

// weeklyDates iterates whole weeks anchored to the Sunday of the start
// date's week. Anchoring to the rule, never the horizon, keeps the
// "every Nth week" pattern stable as the query window shifts.
func weeklyDates(start, lower, bound time.Time, interval int, daysOfWeek []time.Weekday) []time.Time {
	anchor := start.AddDate(0, 0, -int(start.Weekday()))
	days := sortedWeekdays(daysOfWeek)

	// Fast-forward to the first included week that can reach the lower
	// bound, preserving the anchor-relative cadence.
	weekIdx := daysBetween(anchor, lower) / 7
	weekIdx -= weekIdx % interval
	if weekIdx < 0 {
		weekIdx = 0
	}

	var dates []time.Time
	for {
		weekStart := anchor.AddDate(0, 0, weekIdx*7)
		if weekStart.After(bound) {
			break
		}
		for _, dow := range days {
			d := weekStart.AddDate(0, 0, int(dow))
			if d.Before(lower) || d.After(bound) {
				continue
			}
			dates = append(dates, d)
		}
		weekIdx += interval
	}
	return dates
}

// monthlyDates emits dayOfMonth within every Nth month from the start
// date's month. A month too short for dayOfMonth is skipped entirely:
// clamping to the last day would silently move the event to a different
// weekday.
func monthlyDates(start, lower, bound time.Time, interval, dayOfMonth int) []time.Time {
	var dates []time.Time

	year, month, _ := start.Date()
	for i := 0; ; i += interval {
		firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, start.Location()).AddDate(0, i, 0)
		if firstOfMonth.After(bound) {
			break
		}
		y, m, _ := firstOfMonth.Date()
		if dayOfMonth > daysInMonth(y, m, start.Location()) {
			continue
		}
		d := time.Date(y, m, dayOfMonth, 0, 0, 0, 0, start.Location())
		if d.Before(lower) || d.After(bound) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// yearlyDates emits the start date's month and day every Nth year.
// Feb 29 in a non-leap year is skipped, same policy as short months.
func yearlyDates(start, lower, bound time.Time, interval int) []time.Time {
	var dates []time.Time

	year, month, day := start.Date()
	for y := year; ; y += interval {
		if rule.Midnight(time.Date(y, 1, 1, 0, 0, 0, 0, start.Location())).After(bound) {
			break
		}
		if day > daysInMonth(y, month, start.Location()) {
			continue
		}
		d := time.Date(y, month, day, 0, 0, 0, 0, start.Location())
		if d.Before(lower) || d.After(bound) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// sortedWeekdays returns the weekday set sorted ascending with duplicates
// removed, so output dates stay ordered within each week.
func sortedWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// daysBetween returns the whole days from a to b; negative when b is
// before a. Both arguments are expected to be midnights in one location.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
