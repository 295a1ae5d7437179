package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendSink sends through the Resend HTTP API.
type ResendSink struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

func NewResendSink(apiKey, from string) *ResendSink {
	return &ResendSink{
		apiKey:     apiKey,
		from:       from,
		endpoint:   resendEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ResendSink) SendInvitation(ctx context.Context, msg InvitationEmail) (Outcome, error) {
	m, err := BuildInvitation(msg)
	if err != nil {
		return Outcome{}, err
	}
	return s.Send(ctx, m)
}

func (s *ResendSink) SendWelcome(ctx context.Context, msg WelcomeEmail) (Outcome, error) {
	m, err := BuildWelcome(msg)
	if err != nil {
		return Outcome{}, err
	}
	return s.Send(ctx, m)
}

// Send posts a rendered message.
func (s *ResendSink) Send(ctx context.Context, m Message) (Outcome, error) {
	body, err := json.Marshal(map[string]any{
		"from":    s.from,
		"to":      []string{m.To},
		"subject": m.Subject,
		"html":    m.HTMLBody,
		"text":    m.TextBody,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Outcome{}, fmt.Errorf("send email failed (%d): %s", resp.StatusCode, string(detail))
	}

	var out struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return Outcome{OK: true, ID: out.ID}, nil
}
