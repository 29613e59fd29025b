package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Identity
	JWTSecret      string
	AllowedOrigins []string

	// Relay tuning
	SendBuffer     int
	PersistTimeout time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration

	// Scripted participants
	AgentMinDelay time.Duration
	AgentMaxDelay time.Duration

	// Rate limiting
	HandshakeLimit     int      // WebSocket upgrades per minute per IP
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/chatrelay.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AllowedOrigins:     getList("ALLOWED_ORIGINS", []string{"*"}),
		SendBuffer:         getInt("SEND_BUFFER", 64),
		PersistTimeout:     getDuration("PERSIST_TIMEOUT", 5*time.Second),
		PingInterval:       getDuration("PING_INTERVAL", 25*time.Second),
		PongWait:           getDuration("PONG_WAIT", 60*time.Second),
		AgentMinDelay:      getDuration("AGENT_MIN_DELAY", time.Second),
		AgentMaxDelay:      getDuration("AGENT_MAX_DELAY", 3*time.Second),
		HandshakeLimit:     getInt("HANDSHAKE_LIMIT", 30),
		RateLimitWhitelist: getList("RATE_LIMIT_WHITELIST", nil),
	}

	// Pings must land well inside the pong deadline
	if cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}

	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// getList parses a comma-separated variable, dropping empty entries.
func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
