package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daybook-app/cadence/internal/logger"
)

// remindedTTL bounds how long a reminder dedup marker lives. Well past
// the widest lead-time bucket, so a marker never expires while its
// occurrence is still upcoming.
const remindedTTL = 72 * time.Hour

// Redis implements RuleStore, OccurrenceStore, and NotificationStore
// against a single Redis instance
type Redis struct {
	client    *redis.Client
	keyPrefix string
	log       logger.Logger
	// Pre-computed keys for better performance (avoid string allocations)
	activeRulesKey  string
	occIndexKey     string
	unreadNotifsKey string
}

// NewRedis creates a Redis store and tests the connection
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, unavailable("connect to Redis", err)
	}

	return newRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client, used by tests running
// against miniredis
func NewRedisWithClient(client *redis.Client) *Redis {
	return newRedisWithClient(client)
}

func newRedisWithClient(client *redis.Client) *Redis {
	prefix := "cadence:"
	return &Redis{
		client:          client,
		keyPrefix:       prefix,
		log:             logger.Default().WithComponent(logger.ComponentStore),
		activeRulesKey:  prefix + "rules:active",
		occIndexKey:     prefix + "occurrences:index",
		unreadNotifsKey: prefix + "notifications:unread",
	}
}

// Close releases the underlying client
func (s *Redis) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection for components that need raw
// Redis primitives (the reminder tick lock).
func (s *Redis) Client() *redis.Client {
	return s.client
}

// Key generation helpers

func (s *Redis) ruleKey(id string) string {
	var b strings.Builder
	b.Grow(len(s.keyPrefix) + 5 + len(id)) // "rule:" = 5 chars
	b.WriteString(s.keyPrefix)
	b.WriteString("rule:")
	b.WriteString(id)
	return b.String()
}

func (s *Redis) cursorKey(ruleID string) string {
	return s.keyPrefix + "cursor:" + ruleID
}

func (s *Redis) occurrencesKey(ruleID string) string {
	return s.keyPrefix + "occurrences:" + ruleID
}

func (s *Redis) notificationKey(id string) string {
	return s.keyPrefix + "notification:" + id
}

func (s *Redis) remindedKey(occurrenceKey, bucket string) string {
	return s.keyPrefix + "reminded:" + occurrenceKey + ":" + bucket
}
