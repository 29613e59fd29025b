package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
)

// Counter counts hits for a subject inside a fixed window.
type Counter interface {
	HitRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int64, error)
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Scope     string        // key prefix and metrics label
	Limit     int           // requests per window per IP
	Window    time.Duration // defaults to one minute
	Whitelist []string      // IPs or CIDRs exempt from rate limiting
}

// RateLimiter implements fixed window rate limiting per client IP.
type RateLimiter struct {
	counter      Counter
	cfg          RateLimiterConfig
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter. A nil counter or a
// non-positive limit disables limiting.
func NewRateLimiter(counter Counter, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	rl := &RateLimiter{
		counter:      counter,
		cfg:          cfg,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Str("scope", cfg.Scope).
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.counter == nil || rl.cfg.Limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.counter.HitRateLimit(r.Context(), rl.cfg.Scope, ip, rl.cfg.Window)
		if err != nil {
			// fail open: a limiter outage must not take the relay down
			rl.logger.Error().Err(err).Str("scope", rl.cfg.Scope).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.cfg.Limit-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > int64(rl.cfg.Limit) {
			metrics.RateLimitHits.WithLabelValues(rl.cfg.Scope).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.cfg.Window.Seconds())))
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Int64("count", count).
				Msg("rate limit exceeded")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
