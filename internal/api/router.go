package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
)

// NewRouter creates and configures the HTTP router. limiter may be nil.
func NewRouter(logger zerolog.Logger, cfg *config.Config, h *handlers.Handler, limiter middleware.Counter) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	identity := middleware.Identity([]byte(cfg.JWTSecret), logger)
	handshakes := middleware.NewRateLimiter(limiter, logger, middleware.RateLimiterConfig{
		Scope:     "handshake",
		Limit:     cfg.HandshakeLimit,
		Whitelist: cfg.RateLimitWhitelist,
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/presence/{id}", h.Presence)

	r.With(handshakes.Middleware, identity).Get("/ws", h.Socket)

	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(middleware.RequireIdentity)

		r.Get("/unread", h.Unread)
		r.Post("/users", h.Register)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/{id}/messages", h.ConversationMessages)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
