package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/agents"
	"github.com/eldtechnologies/chatrelay/internal/api"
	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/config"
	"github.com/eldtechnologies/chatrelay/internal/handlers"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
	"github.com/eldtechnologies/chatrelay/internal/transport"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	// Redis is optional: it shares presence and backs the handshake limiter
	var (
		redisStore *store.RedisStore
		presence   = relay.PresenceStores{store.LastSeenRecorder{DB: db}}
		limiter    middleware.Counter
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		presence = append(presence, redisStore)
		limiter = redisStore
		logger.Info().Msg("connected to Redis")
	}

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set: identities are not verified")
	}

	hub := relay.NewHub(relay.Options{
		Store:          db,
		Conversations:  db,
		Presence:       presence,
		Logger:         logger,
		PersistTimeout: cfg.PersistTimeout,
	})

	responder := agents.NewResponder(db, hub.Relay(), hub.Tracker(), logger, agents.Config{
		MinDelay: cfg.AgentMinDelay,
		MaxDelay: cfg.AgentMaxDelay,
	})
	hub.Relay().Observe(responder)

	sockets := transport.NewServer(hub, transport.Options{
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	h := handlers.NewHandler(db, redisStore, hub, sockets, logger)
	router := api.NewRouter(logger, cfg, h, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// hijacked sockets are not tracked by http.Server
	sockets.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	responder.Close()

	logger.Info().Msg("server stopped")
}

// openStore connects to PostgreSQL when DATABASE_URL is set and falls
// back to a local SQLite file otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.DataStore, error) {
	if cfg.DatabaseURL != "" {
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(ctx, cfg.SQLitePath)
}
