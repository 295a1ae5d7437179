package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/toolate/internal/api"
	"github.com/nikhilbhutani/toolate/internal/config"
	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/queue"
	"github.com/nikhilbhutani/toolate/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.Environment)
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	db, err := database.NewPool(ctx, cfg.Database, cfg.Telemetry.ServiceName)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it slug lookups are uncached and invites
	// rely on the database index alone.
	var rdb *redis.Client
	candidate := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := candidate.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache", "error", err)
		candidate.Close()
	} else {
		rdb = candidate
		defer rdb.Close()
	}

	var sink notify.Sink
	switch cfg.Email.Transport {
	case "queue":
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		sink = queue.NewSink(qc)
	default:
		sink = notify.New(cfg.Email.ResendAPIKey, cfg.SenderAddress(), logger)
	}
	slog.Info("email transport", "transport", cfg.Email.Transport, "invite_delivery", cfg.App.InviteDelivery)

	router := api.NewRouter(db, rdb, cfg, sink)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown", "error", err)
	}
	slog.Info("server stopped")
}
