package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/toolate/internal/config"
	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/queue"
	"github.com/nikhilbhutani/toolate/internal/queue/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Email.ResendAPIKey == "" {
		slog.Warn("RESEND_API_KEY not set, deliveries will only be logged")
	}

	concurrency := cfg.Email.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			// Invitations carry a time-limited link, welcomes do not.
			Queues: map[string]int{
				"critical": 3,
				"default":  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				if retried >= maxRetry {
					slog.ErrorContext(ctx, "email delivery abandoned", "type", task.Type(), "retries", retried, "error", err)
				}
			}),
			Logger: newAsynqLogger(logger),
		},
	)

	registry := queue.NewHandlersRegistry()

	// The worker always sends inline; queueing again would loop.
	sink := notify.New(cfg.Email.ResendAPIKey, cfg.SenderAddress(), logger)
	workers.NewEmailWorker(sink).Register(registry)

	slog.Info("starting email worker", "concurrency", concurrency, "redis", cfg.Redis.Addr)
	// Run blocks until SIGTERM or SIGINT and drains in-flight tasks.
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

// asynqLogger routes asynq's internal logs through slog.
type asynqLogger struct{ l *slog.Logger }

func newAsynqLogger(l *slog.Logger) asynq.Logger { return asynqLogger{l: l.With("component", "asynq")} }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
