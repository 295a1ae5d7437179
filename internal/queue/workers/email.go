package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/queue"
)

// EmailWorker delivers queued emails through the configured sink.
type EmailWorker struct {
	sink notify.Sink
}

func NewEmailWorker(sink notify.Sink) *EmailWorker {
	return &EmailWorker{sink: sink}
}

func (w *EmailWorker) Register(r *queue.HandlersRegistry) {
	r.Register(queue.TypeInvitationEmail, asynq.HandlerFunc(w.ProcessInvitation))
	r.Register(queue.TypeWelcomeEmail, asynq.HandlerFunc(w.ProcessWelcome))
}

func (w *EmailWorker) ProcessInvitation(ctx context.Context, t *asynq.Task) error {
	var msg notify.InvitationEmail
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("unmarshal invitation email: %w: %w", err, asynq.SkipRetry)
	}
	out, err := w.sink.SendInvitation(ctx, msg)
	if err != nil {
		return fmt.Errorf("send invitation email: %w", err)
	}
	slog.Info("invitation email delivered", "to", msg.To, "organization", msg.OrganizationName, "mock", out.Mock)
	return nil
}

func (w *EmailWorker) ProcessWelcome(ctx context.Context, t *asynq.Task) error {
	var msg notify.WelcomeEmail
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("unmarshal welcome email: %w: %w", err, asynq.SkipRetry)
	}
	out, err := w.sink.SendWelcome(ctx, msg)
	if err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	slog.Info("welcome email delivered", "to", msg.To, "organization", msg.OrganizationName, "mock", out.Mock)
	return nil
}
