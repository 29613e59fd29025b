package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("ENV", "development")
	t.Setenv("PERSIST_TIMEOUT", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()

	req.True(cfg.IsDevelopment())
	req.Equal(5*time.Second, cfg.PersistTimeout)
	req.Equal([]string{"*"}, cfg.AllowedOrigins)
	req.Less(cfg.PingInterval, cfg.PongWait)
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("ENV", "staging")
	t.Setenv("SEND_BUFFER", "8")
	t.Setenv("PONG_WAIT", "10s")
	t.Setenv("PING_INTERVAL", "30s")
	t.Setenv("AGENT_MIN_DELAY", "250ms")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.0/8, ,127.0.0.1 ")
	t.Setenv("HANDSHAKE_LIMIT", "nope")

	cfg := Load()

	req.False(cfg.IsDevelopment())
	req.Equal(8, cfg.SendBuffer)
	req.Equal(9*time.Second, cfg.PingInterval)
	req.Equal(250*time.Millisecond, cfg.AgentMinDelay)
	req.Equal([]string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
	req.Equal(30, cfg.HandshakeLimit)
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/chat")
	t.Setenv("JWT_SECRET", "")

	require.PanicsWithValue(t, "JWT_SECRET is required in production", func() { Load() })
}
