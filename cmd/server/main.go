package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/api"
	"github.com/eldtechnologies/codepair/internal/api/middleware"
	"github.com/eldtechnologies/codepair/internal/config"
	"github.com/eldtechnologies/codepair/internal/rooms"
	"github.com/eldtechnologies/codepair/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
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

	if cfg.IsRemote() {
		logger.Fatal().Msg("API_URL is set; the server must own its storage")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open the configured backend
	backend, err := rooms.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage initialization failed")
	}
	logger.Info().Str("driver", cfg.StorageDriver).Msg("storage ready")

	// Sync channel: in-process, or Redis pub/sub for multiple instances
	ch, closeChannel, err := rooms.OpenChannel(ctx, cfg, logger)
	if err != nil {
		backend.Close()
		logger.Fatal().Err(err).Msg("sync channel initialization failed")
	}
	defer closeChannel()

	roomStore := rooms.NewLocal(backend, ch, 0, logger)
	defer roomStore.Close()

	hub := ws.NewHub(logger)
	defer hub.Attach(ch)()

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Create router
	router := api.NewRouter(logger, api.Options{
		Rooms:          roomStore,
		Hub:            hub,
		Redis:          rdb,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      middleware.RateLimiterConfig{Whitelist: cfg.RateLimitWhitelist},
	})

	// Create server. /ws connections set their own write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting codepair server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
