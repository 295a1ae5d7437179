package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAccountExists is returned when provisioning an address that already has
// an account.
var ErrAccountExists = errors.New("account already exists")

// GoTrueClient talks to the hosted auth service's admin API with the service
// key.
type GoTrueClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewGoTrueClient(supabaseURL, serviceKey string) *GoTrueClient {
	return &GoTrueClient{
		baseURL:    strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code"`
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	ErrorDesc string `json:"error_description"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDesc} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

type linkResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	ActionLink string    `json:"action_link"`
	Properties struct {
		ActionLink string `json:"action_link"`
	} `json:"properties"`
}

func (r linkResponse) link() string {
	if r.ActionLink != "" {
		return r.ActionLink
	}
	return r.Properties.ActionLink
}

func (c *GoTrueClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.ErrorCode == "email_exists" || apiErr.ErrorCode == "user_already_exists" ||
			strings.Contains(apiErr.text(), "already been registered") {
			return ErrAccountExists
		}
		return fmt.Errorf("%s failed (%d): %s", path, resp.StatusCode, apiErr.text())
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Invite creates the account and lets the auth service send its own invite
// email.
func (c *GoTrueClient) Invite(ctx context.Context, email string, data map[string]any, redirectTo string) (*Provisioned, error) {
	var resp linkResponse
	err := c.post(ctx, "/invite", map[string]any{
		"email":       email,
		"data":        data,
		"redirect_to": redirectTo,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Provisioned{UserID: resp.ID}, nil
}

// GenerateLink creates the account if needed and returns the action link
// without sending any email. linkType is "invite" or "magiclink".
func (c *GoTrueClient) GenerateLink(ctx context.Context, linkType, email string, data map[string]any, redirectTo string) (*Provisioned, error) {
	var resp linkResponse
	err := c.post(ctx, "/admin/generate_link", map[string]any{
		"type":        linkType,
		"email":       email,
		"data":        data,
		"redirect_to": redirectTo,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Provisioned{UserID: resp.ID, ActionLink: resp.link()}, nil
}

// SendMagicLink asks the auth service to email a sign-in link to an existing
// account.
func (c *GoTrueClient) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	return c.post(ctx, "/otp", map[string]any{
		"email":       email,
		"create_user": false,
		"options":     map[string]any{"email_redirect_to": redirectTo},
	}, nil)
}
