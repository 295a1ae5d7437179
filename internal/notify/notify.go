// Package notify delivers the console's transactional email.
package notify

import (
	"context"

	"github.com/nikhilbhutani/toolate/internal/models"
)

type InvitationEmail struct {
	To               string         `json:"to"`
	InviterName      string         `json:"inviter_name"`
	OrganizationName string         `json:"organization_name"`
	Role             models.OrgRole `json:"role"`
	AcceptURL        string         `json:"accept_url"`
}

type WelcomeEmail struct {
	To               string `json:"to"`
	OrganizationName string `json:"organization_name"`
	DashboardURL     string `json:"dashboard_url"`
}

// Outcome reports a delivery. Mock is set when nothing was actually sent.
type Outcome struct {
	OK   bool   `json:"ok"`
	Mock bool   `json:"mock,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Sink sends email. Errors are for the caller to log; a failed email never
// undoes the operation that triggered it.
type Sink interface {
	SendInvitation(ctx context.Context, msg InvitationEmail) (Outcome, error)
	SendWelcome(ctx context.Context, msg WelcomeEmail) (Outcome, error)
}
