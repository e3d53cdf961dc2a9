package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/daybook-app/cadence/internal/clock"
	"github.com/daybook-app/cadence/internal/config"
	"github.com/daybook-app/cadence/internal/rule"
	"github.com/daybook-app/cadence/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		HorizonDays:            10,
		MaterializeInterval:    time.Hour,
		MaterializeConcurrency: 2,
		ReminderInterval:       time.Minute,
		ReminderLookahead:      30 * time.Hour,
		LockTTL:                time.Minute,
	}
}

func setupEngine(t *testing.T, now time.Time) (*Engine, *store.Redis, *clock.Fixed) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisWithClient(client)
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFixed(now)
	e, err := NewWithStores(testConfig(), st, st, st, clk)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return e, st, clk
}

func dailyRule(title string) *rule.Rule {
	return rule.New(title, rule.FrequencyDaily, rule.Date(2024, time.January, 1),
		rule.MustTimeOfDay("12:45"), rule.MustTimeOfDay("13:30"))
}

func TestSaveRule_MaterializesImmediately(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	r := dailyRule("Lunch walk")
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Horizon is [today, today+10], both days inclusive.
	occurrences, err := st.Range(ctx, r.ID, rule.NewHorizon(
		rule.Date(2024, time.January, 1), rule.Date(2024, time.December, 31)))
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(occurrences) != 11 {
		t.Errorf("expected 11 materialized occurrences, got %d", len(occurrences))
	}

	cursor, err := st.Cursor(ctx, r.ID)
	if err != nil {
		t.Fatalf("cursor read failed: %v", err)
	}
	if !cursor.Equal(rule.Date(2024, time.January, 11)) {
		t.Errorf("expected cursor at horizon end, got %v", cursor)
	}
}

func TestSaveRule_EditConvergesStore(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	r := dailyRule("Gym")
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Every day becomes every other day. The edit must regenerate the
	// current horizon instead of resuming behind the stale cursor, so
	// the even days disappear immediately.
	r.Interval = 2
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save after edit failed: %v", err)
	}

	occurrences, err := st.Range(ctx, r.ID, rule.NewHorizon(
		rule.Date(2024, time.January, 1), rule.Date(2024, time.December, 31)))
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(occurrences) != 6 {
		t.Fatalf("expected 6 occurrences after edit, got %d", len(occurrences))
	}
	for i, o := range occurrences {
		want := rule.Date(2024, time.January, 1+2*i)
		if !o.Date.Equal(want) {
			t.Errorf("occurrence %d: expected %v, got %v", i, want, o.Date)
		}
	}
}

func TestSaveRule_RejectsInvalid(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	r := dailyRule("Broken")
	r.Interval = 0

	err := e.SaveRule(ctx, r)
	var vErr *rule.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := st.Get(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("expected invalid rule not to be stored")
	}
}

func TestDeactivateRule_PrunesFuture(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 5))
	ctx := context.Background()

	r := dailyRule("Habit")
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := e.DeactivateRule(ctx, r.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	got, err := e.GetRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.IsActive {
		t.Error("expected rule inactive")
	}

	occurrences, err := st.Range(ctx, r.ID, rule.NewHorizon(
		rule.Date(2024, time.January, 1), rule.Date(2024, time.December, 31)))
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	// Jan 5 to Jan 15 were materialized; only today (Jan 5) survives.
	if len(occurrences) != 1 || !occurrences[0].Date.Equal(rule.Date(2024, time.January, 5)) {
		t.Errorf("expected only today's occurrence kept, got %v", occurrences)
	}

	active, err := st.ListActive(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active rules, got %d", len(active))
	}
}

func TestDeleteRule_RemovesEverything(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	r := dailyRule("Gone soon")
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := e.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := e.GetRule(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("expected rule removed")
	}
	occurrences, err := st.Range(ctx, r.ID, rule.NewHorizon(
		rule.Date(2024, time.January, 1), rule.Date(2024, time.December, 31)))
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(occurrences) != 0 {
		t.Errorf("expected all occurrences removed, got %d", len(occurrences))
	}
}

func TestMaterializePass_SkipsBrokenRule(t *testing.T) {
	e, st, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	healthy := dailyRule("Healthy")
	broken := dailyRule("Broken")
	broken.DaysOfWeek = nil
	broken.Frequency = rule.FrequencyWeekly // weekly without weekdays fails validation

	// Bypass SaveRule validation to model a rule corrupted in place.
	if err := st.Put(ctx, healthy); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := st.Put(ctx, broken); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := e.MaterializePass(ctx); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	h := rule.NewHorizon(rule.Date(2024, time.January, 1), rule.Date(2024, time.December, 31))
	occurrences, err := st.Range(ctx, healthy.ID, h)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(occurrences) == 0 {
		t.Error("expected healthy rule materialized despite broken sibling")
	}

	occurrences, err = st.Range(ctx, broken.ID, h)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(occurrences) != 0 {
		t.Errorf("expected broken rule to produce nothing, got %d", len(occurrences))
	}
}

func TestRemindNow_EmitsAndEngineReadsUnread(t *testing.T) {
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	e, _, _ := setupEngine(t, now)
	ctx := context.Background()

	r := dailyRule("Dentist")
	end := rule.Date(2024, time.January, 1)
	r.EndDate = &end // single occurrence, starting in 45 minutes
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	e.RemindNow(ctx)

	unread, err := e.Unread(ctx)
	if err != nil {
		t.Fatalf("unread failed: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(unread))
	}
	if !strings.Contains(unread[0].Message, "45") {
		t.Errorf("expected imminent message with minutes, got %q", unread[0].Message)
	}

	if err := e.MarkRead(ctx, unread[0].ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	unread, err = e.Unread(ctx)
	if err != nil {
		t.Fatalf("unread failed: %v", err)
	}
	if len(unread) != 0 {
		t.Errorf("expected no unread after mark read, got %d", len(unread))
	}
}

func TestExportICS_WritesMaterializedSchedule(t *testing.T) {
	e, _, _ := setupEngine(t, rule.Date(2024, time.January, 1))
	ctx := context.Background()

	r := dailyRule("Standup")
	if err := e.SaveRule(ctx, r); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var buf bytes.Buffer
	err := e.ExportICS(ctx, &buf, rule.Date(2024, time.January, 1), rule.Date(2024, time.January, 3))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	out := buf.String()
	if got := strings.Count(out, "BEGIN:VEVENT"); got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
	if !strings.Contains(out, "SUMMARY:Standup") {
		t.Error("expected event summary in export")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	e, _, _ := setupEngine(t, rule.Date(2024, time.January, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}
