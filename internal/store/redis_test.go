package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedis_PresenceLifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, mr := newTestRedis(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// given nothing recorded
	p, err := s.Presence(ctx, "alice")
	req.NoError(err)
	req.Nil(p)

	// when online
	req.NoError(s.MarkOnline(ctx, "alice", at))
	p, err = s.Presence(ctx, "alice")
	req.NoError(err)
	req.True(p.Online)
	req.True(mr.TTL("presence:alice") > 0)

	// when offline
	req.NoError(s.MarkOffline(ctx, "alice", at.Add(time.Minute)))
	p, err = s.Presence(ctx, "alice")
	req.NoError(err)
	req.False(p.Online)
	req.NotNil(p.LastSeen)
	req.True(at.Add(time.Minute).Equal(*p.LastSeen))
}

func TestRedis_HitRateLimitCountsPerSubject(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s, _ := newTestRedis(t)

	for want := int64(1); want <= 3; want++ {
		n, err := s.HitRateLimit(ctx, "handshake", "203.0.113.7", time.Hour)
		req.NoError(err)
		req.Equal(want, n)
	}

	n, err := s.HitRateLimit(ctx, "handshake", "203.0.113.8", time.Hour)
	req.NoError(err)
	req.Equal(int64(1), n)
}

func TestRedis_PingFailsWhenDown(t *testing.T) {
	s, mr := newTestRedis(t)
	mr.Close()

	require.Error(t, s.Ping(context.Background()))
}
