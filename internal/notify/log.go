package notify

import (
	"context"
	"log/slog"
)

// LogSink writes emails to the log instead of sending them. It is used when
// no email provider is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) SendInvitation(ctx context.Context, msg InvitationEmail) (Outcome, error) {
	s.logger.InfoContext(ctx, "email not configured, logging invitation",
		"to", msg.To,
		"subject", "You've been invited to join "+msg.OrganizationName,
		"invited_by", msg.InviterName,
		"organization", msg.OrganizationName,
		"role", msg.Role,
		"accept_url", msg.AcceptURL,
	)
	return Outcome{OK: true, Mock: true}, nil
}

func (s *LogSink) SendWelcome(ctx context.Context, msg WelcomeEmail) (Outcome, error) {
	s.logger.InfoContext(ctx, "email not configured, logging welcome",
		"to", msg.To,
		"subject", "Welcome to "+msg.OrganizationName+"!",
	)
	return Outcome{OK: true, Mock: true}, nil
}

// New picks the Resend sink when an API key is set, else the log sink.
func New(apiKey, from string, logger *slog.Logger) Sink {
	if apiKey == "" {
		return NewLogSink(logger)
	}
	return NewResendSink(apiKey, from)
}
