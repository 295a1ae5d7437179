package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/toolate/internal/config"
	"github.com/nikhilbhutani/toolate/internal/notify"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueInvitationEmail(ctx context.Context, msg notify.InvitationEmail) error {
	return c.enqueue(ctx, TypeInvitationEmail, msg, asynq.MaxRetry(5), asynq.Timeout(30*time.Second), asynq.Queue("critical"))
}

func (c *Client) EnqueueWelcomeEmail(ctx context.Context, msg notify.WelcomeEmail) error {
	return c.enqueue(ctx, TypeWelcomeEmail, msg, asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

type enqueuer interface {
	EnqueueInvitationEmail(ctx context.Context, msg notify.InvitationEmail) error
	EnqueueWelcomeEmail(ctx context.Context, msg notify.WelcomeEmail) error
}

// Sink hands emails to the worker instead of sending them inline. A
// successful enqueue is reported as delivered.
type Sink struct {
	q enqueuer
}

func NewSink(q enqueuer) *Sink {
	return &Sink{q: q}
}

func (s *Sink) SendInvitation(ctx context.Context, msg notify.InvitationEmail) (notify.Outcome, error) {
	if err := s.q.EnqueueInvitationEmail(ctx, msg); err != nil {
		return notify.Outcome{}, err
	}
	return notify.Outcome{OK: true}, nil
}

func (s *Sink) SendWelcome(ctx context.Context, msg notify.WelcomeEmail) (notify.Outcome, error) {
	if err := s.q.EnqueueWelcomeEmail(ctx, msg); err != nil {
		return notify.Outcome{}, err
	}
	return notify.Outcome{OK: true}, nil
}
