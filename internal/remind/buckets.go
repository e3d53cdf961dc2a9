package remind

import (
	"fmt"
	"math"
	"time"

	"github.com/daybook-app/cadence/internal/rule"
)

// Bucket is a discrete "how far in advance" classification. Each
// (occurrence, bucket) pair produces at most one reminder, ever.
type Bucket string

const (
	// BucketImminent fires within the last hour before start
	BucketImminent Bucket = "imminent"
	// BucketNear fires around three hours before start
	BucketNear Bucket = "near"
	// BucketDayAhead fires around a day before start
	BucketDayAhead Bucket = "day_ahead"
)

const (
	imminentMax = time.Hour
	nearMin     = 150 * time.Minute // 2.5h
	nearMax     = 210 * time.Minute // 3.5h
	dayAheadMin = 20 * time.Hour
	dayAheadMax = 28 * time.Hour
)

// Evaluate classifies the time remaining until start. Buckets are checked
// in priority order and the first match wins for this invocation; as time
// advances, later invocations naturally re-derive whichever buckets have
// newly become true, so an occurrence can still receive multiple distinct
// reminders across ticks.
func Evaluate(now, start time.Time) (Bucket, bool) {
	remaining := start.Sub(now)
	switch {
	case remaining > 0 && remaining <= imminentMax:
		return BucketImminent, true
	case remaining >= nearMin && remaining <= nearMax:
		return BucketNear, true
	case remaining >= dayAheadMin && remaining <= dayAheadMax:
		return BucketDayAhead, true
	}
	return "", false
}

// Message builds the user-facing reminder text. The text is purely
// presentational; dedup runs on the (occurrence, bucket) key, never on
// message content.
func Message(b Bucket, now time.Time, o rule.Occurrence) string {
	switch b {
	case BucketImminent:
		minutes := int(math.Ceil(o.StartAt().Sub(now).Minutes()))
		return fmt.Sprintf("%s starts in %d minutes", o.Title, minutes)
	case BucketNear:
		return fmt.Sprintf("%s starts in 3 hours", o.Title)
	case BucketDayAhead:
		return fmt.Sprintf("%s is tomorrow at %s", o.Title, o.StartTime)
	}
	return ""
}
