package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daybook-app/cadence/internal/rule"
)

// Occurrences live in a per-rule hash (field: date, value: JSON record)
// plus one global sorted set scored by the start instant, so the reminder
// scheduler can read a single time window across every rule.

// Range returns the rule's occurrences within the horizon, ascending by date
func (s *Redis) Range(ctx context.Context, ruleID string, h rule.Horizon) ([]rule.Occurrence, error) {
	fields, err := s.client.HGetAll(ctx, s.occurrencesKey(ruleID)).Result()
	if err != nil {
		return nil, unavailable("range occurrences", err)
	}

	occurrences := make([]rule.Occurrence, 0, len(fields))
	for date, data := range fields {
		day, err := time.ParseInLocation(rule.DateLayout, date, time.UTC)
		if err != nil {
			s.log.Warn("Skipping occurrence with malformed date field",
				"rule_id", ruleID, "date", date)
			continue
		}
		if !h.Contains(day) {
			continue
		}
		var o rule.Occurrence
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal occurrence %s/%s: %w", ruleID, date, err)
		}
		occurrences = append(occurrences, o)
	}

	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].Date.Before(occurrences[j].Date)
	})
	return occurrences, nil
}

// CreateBatch persists occurrences and indexes their start instants
func (s *Redis) CreateBatch(ctx context.Context, occurrences []rule.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, o := range occurrences {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal occurrence %s: %w", o.Key(), err)
		}
		pipe.HSet(ctx, s.occurrencesKey(o.RuleID), o.Date.Format(rule.DateLayout), data)
		pipe.ZAdd(ctx, s.occIndexKey, redis.Z{
			Score:  float64(o.StartAt().Unix()),
			Member: o.Key().String(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("create occurrences", err)
	}

	s.log.Debug("Created occurrences", "count", len(occurrences))
	return nil
}

// DeleteBatch removes occurrences by key
func (s *Redis) DeleteBatch(ctx context.Context, keys []rule.Key) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.HDel(ctx, s.occurrencesKey(k.RuleID), k.Date.Format(rule.DateLayout))
		pipe.ZRem(ctx, s.occIndexKey, k.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("delete occurrences", err)
	}

	s.log.Debug("Deleted occurrences", "count", len(keys))
	return nil
}

// Window returns all occurrences whose start instant falls within
// [from, to], across every rule, ordered by (start instant, rule ID)
func (s *Redis) Window(ctx context.Context, from, to time.Time) ([]rule.Occurrence, error) {
	members, err := s.client.ZRangeByScore(ctx, s.occIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.Unix(), 10),
		Max: strconv.FormatInt(to.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable("read occurrence window", err)
	}

	occurrences := make([]rule.Occurrence, 0, len(members))
	for _, member := range members {
		key, err := rule.ParseKey(member)
		if err != nil {
			s.log.Warn("Skipping malformed occurrence index member", "member", member)
			continue
		}
		data, err := s.client.HGet(ctx, s.occurrencesKey(key.RuleID), key.Date.Format(rule.DateLayout)).Result()
		if errors.Is(err, redis.Nil) {
			// Index entry outlived its record; drop it.
			s.client.ZRem(ctx, s.occIndexKey, member)
			continue
		}
		if err != nil {
			return nil, unavailable("read occurrence window", err)
		}
		var o rule.Occurrence
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal occurrence %s: %w", member, err)
		}
		occurrences = append(occurrences, o)
	}

	sort.Slice(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if !a.StartAt().Equal(b.StartAt()) {
			return a.StartAt().Before(b.StartAt())
		}
		return a.RuleID < b.RuleID
	})
	return occurrences, nil
}

// DeleteFrom removes the rule's occurrences dated on or after the given
// day, returning how many were removed
func (s *Redis) DeleteFrom(ctx context.Context, ruleID string, from time.Time) (int, error) {
	h := rule.Horizon{Start: rule.Midnight(from), End: rule.Date(9999, time.December, 31)}
	occurrences, err := s.Range(ctx, ruleID, h)
	if err != nil {
		return 0, err
	}
	if len(occurrences) == 0 {
		return 0, nil
	}

	keys := make([]rule.Key, 0, len(occurrences))
	for _, o := range occurrences {
		keys = append(keys, o.Key())
	}
	if err := s.DeleteBatch(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}
