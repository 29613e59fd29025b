package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

const presenceTTL = 30 * 24 * time.Hour

// RedisStore keeps presence snapshots and rate limit counters.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// presenceKey returns the key for an identity's presence hash.
func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// rateLimitKey returns the key for a fixed-window counter.
func rateLimitKey(scope, subject string, window time.Duration) string {
	bucket := time.Now().UnixNano() / int64(window)
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, bucket)
}

// MarkOnline records that an identity came online.
func (s *RedisStore) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	key := presenceKey(userID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "status", "online", "since", at.UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkOffline records that an identity's last connection closed.
func (s *RedisStore) MarkOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	key := presenceKey(userID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "status", "offline", "last_seen", lastSeen.UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Presence returns the stored presence snapshot, or nil if none exists.
func (s *RedisStore) Presence(ctx context.Context, userID string) (*models.Presence, error) {
	fields, err := s.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	p := &models.Presence{UserID: userID, Online: fields["status"] == "online"}
	if raw := fields["last_seen"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.LastSeen = &ts
		}
	}
	return p, nil
}

// HitRateLimit increments the current window's counter for subject and
// returns the new count.
func (s *RedisStore) HitRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int64, error) {
	key := rateLimitKey(scope, subject, window)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
