package remind

import (
	"strings"
	"testing"
	"time"

	"github.com/daybook-app/cadence/internal/rule"
)

func TestEvaluate_Buckets(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		lead   time.Duration
		bucket Bucket
		ok     bool
	}{
		{"already started", -time.Minute, "", false},
		{"starting this instant", 0, "", false},
		{"one minute out", time.Minute, BucketImminent, true},
		{"45 minutes out", 45 * time.Minute, BucketImminent, true},
		{"exactly one hour", time.Hour, BucketImminent, true},
		{"just past one hour", 61 * time.Minute, "", false},
		{"two hours out", 2 * time.Hour, "", false},
		{"near lower edge", 150 * time.Minute, BucketNear, true},
		{"three hours out", 3 * time.Hour, BucketNear, true},
		{"near upper edge", 210 * time.Minute, BucketNear, true},
		{"just past near window", 211 * time.Minute, "", false},
		{"day ahead lower edge", 20 * time.Hour, BucketDayAhead, true},
		{"24 hours out", 24 * time.Hour, BucketDayAhead, true},
		{"day ahead upper edge", 28 * time.Hour, BucketDayAhead, true},
		{"beyond day ahead", 29 * time.Hour, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, ok := Evaluate(now, now.Add(tc.lead))
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if bucket != tc.bucket {
				t.Errorf("expected bucket %q, got %q", tc.bucket, bucket)
			}
		})
	}
}

func TestMessage_Imminent(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	o := rule.Occurrence{
		RuleID:    "r1",
		Date:      rule.Date(2024, time.January, 10),
		Title:     "Dentist",
		StartTime: rule.MustTimeOfDay("12:45"),
		EndTime:   rule.MustTimeOfDay("13:30"),
	}

	msg := Message(BucketImminent, now, o)
	if !strings.Contains(msg, "45") {
		t.Errorf("expected message to contain '45', got %q", msg)
	}
	if !strings.Contains(msg, "Dentist") {
		t.Errorf("expected message to contain title, got %q", msg)
	}
}

func TestMessage_ImminentRoundsUp(t *testing.T) {
	// 44m30s remaining reads as "45 minutes", never "44".
	now := time.Date(2024, time.January, 10, 12, 0, 30, 0, time.UTC)
	o := rule.Occurrence{
		Title:     "Dentist",
		Date:      rule.Date(2024, time.January, 10),
		StartTime: rule.MustTimeOfDay("12:45"),
	}

	msg := Message(BucketImminent, now, o)
	if !strings.Contains(msg, "45 minutes") {
		t.Errorf("expected rounded-up minutes, got %q", msg)
	}
}

func TestMessage_NearAndDayAhead(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	o := rule.Occurrence{
		Title:     "Book club",
		Date:      rule.Date(2024, time.January, 11),
		StartTime: rule.MustTimeOfDay("19:00"),
	}

	if msg := Message(BucketNear, now, o); !strings.Contains(msg, "3 hours") {
		t.Errorf("expected near message to mention 3 hours, got %q", msg)
	}

	msg := Message(BucketDayAhead, now, o)
	if !strings.Contains(msg, "tomorrow") || !strings.Contains(msg, "19:00") {
		t.Errorf("expected day-ahead message with start time, got %q", msg)
	}
}
