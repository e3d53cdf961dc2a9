package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/daybook-app/cadence/internal/rule"
)

// createReminderScript claims the (occurrence, bucket) dedup slot and
// writes the notification in one atomic step. SETNX makes the claim
// race-free: only the first caller gets 1 back. Claim-then-write as two
// round trips would strand the claim whenever the write failed,
// suppressing the reminder for the claim's whole TTL.
var createReminderScript = redis.NewScript(`
if redis.call("set", KEYS[1], "1", "NX", "PX", ARGV[1]) then
	redis.call("set", KEYS[2], ARGV[2])
	redis.call("sadd", KEYS[3], ARGV[3])
	return 1
end
return 0
`)

// CreateReminder atomically claims the reminder slot and persists the
// notification. Returns false when the slot was already claimed.
func (s *Redis) CreateReminder(ctx context.Context, n *Notification, key rule.Key, bucket string) (bool, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification: %w", err)
	}

	keys := []string{
		s.remindedKey(key.String(), bucket),
		s.notificationKey(n.ID),
		s.unreadNotifsKey,
	}
	res, err := createReminderScript.Run(ctx, s.client, keys,
		remindedTTL.Milliseconds(), data, n.ID).Int64()
	if err != nil {
		return false, unavailable("create reminder", err)
	}
	if res == 0 {
		return false, nil
	}

	s.log.Debug("Created notification",
		"notification_id", n.ID,
		"occurrence_key", n.OccurrenceKey,
		"bucket", n.Bucket)
	return true, nil
}

// Unread returns unread notifications, newest first
func (s *Redis) Unread(ctx context.Context) ([]*Notification, error) {
	ids, err := s.client.SMembers(ctx, s.unreadNotifsKey).Result()
	if err != nil {
		return nil, unavailable("list unread notifications", err)
	}

	notifications := make([]*Notification, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.notificationKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			// Unread entry outlived its record; drop it.
			s.client.SRem(ctx, s.unreadNotifsKey, id)
			continue
		}
		if err != nil {
			return nil, unavailable("list unread notifications", err)
		}
		var n Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification %s: %w", id, err)
		}
		notifications = append(notifications, &n)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

// MarkRead flags a notification as read
func (s *Redis) MarkRead(ctx context.Context, id string) error {
	data, err := s.client.Get(ctx, s.notificationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return unavailable("mark notification read", err)
	}

	var n Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification %s: %w", id, err)
	}
	n.Read = true

	updated, err := json.Marshal(&n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.notificationKey(id), updated, 0)
	pipe.SRem(ctx, s.unreadNotifsKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("mark notification read", err)
	}
	return nil
}

