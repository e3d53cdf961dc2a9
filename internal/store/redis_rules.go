package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daybook-app/cadence/internal/rule"
)

// Put creates or replaces a rule and keeps the active-rule index in sync
func (s *Redis) Put(ctx context.Context, r *rule.Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.ruleKey(r.ID), data, 0)
	if r.IsActive {
		pipe.SAdd(ctx, s.activeRulesKey, r.ID)
	} else {
		pipe.SRem(ctx, s.activeRulesKey, r.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("put rule", err)
	}

	s.log.Debug("Stored rule", "rule_id", r.ID, "active", r.IsActive)
	return nil
}

// Get retrieves a rule by ID
func (s *Redis) Get(ctx context.Context, id string) (*rule.Rule, error) {
	data, err := s.client.Get(ctx, s.ruleKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get rule", err)
	}

	var r rule.Rule
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule %s: %w", id, err)
	}
	return &r, nil
}

// ListActive returns all active rules. Rules present in the index but
// missing their record are skipped rather than failing the whole listing.
func (s *Redis) ListActive(ctx context.Context) ([]*rule.Rule, error) {
	ids, err := s.client.SMembers(ctx, s.activeRulesKey).Result()
	if err != nil {
		return nil, unavailable("list active rules", err)
	}

	rules := make([]*rule.Rule, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.log.Warn("Active rule index references missing rule", "rule_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Cursor returns the rule's materialization cursor, zero when never set
func (s *Redis) Cursor(ctx context.Context, ruleID string) (time.Time, error) {
	data, err := s.client.Get(ctx, s.cursorKey(ruleID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, unavailable("get cursor", err)
	}

	cursor, err := time.Parse(time.RFC3339, data)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cursor for rule %s: %w", ruleID, err)
	}
	return cursor, nil
}

// AdvanceCursor records the end of the last fully materialized horizon
func (s *Redis) AdvanceCursor(ctx context.Context, ruleID string, to time.Time) error {
	if err := s.client.Set(ctx, s.cursorKey(ruleID), to.Format(time.RFC3339), 0).Err(); err != nil {
		return unavailable("advance cursor", err)
	}
	s.log.Debug("Advanced cursor", "rule_id", ruleID, "to", to.Format(rule.DateLayout))
	return nil
}

// ResetCursor clears the rule's materialization cursor
func (s *Redis) ResetCursor(ctx context.Context, ruleID string) error {
	if err := s.client.Del(ctx, s.cursorKey(ruleID)).Err(); err != nil {
		return unavailable("reset cursor", err)
	}
	s.log.Debug("Reset cursor", "rule_id", ruleID)
	return nil
}

// Delete removes a rule, its cursor, and its active-index entry
func (s *Redis) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.ruleKey(id))
	pipe.Del(ctx, s.cursorKey(id))
	pipe.SRem(ctx, s.activeRulesKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("delete rule", err)
	}
	return nil
}
