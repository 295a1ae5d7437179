// Package membership reconciles organization membership: invitations,
// direct adds, role changes and removals, checked against the caller's
// organization role before the row-level policies see them.
package membership

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/metrics"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

const (
	msgNoInvitePermission = "You do not have permission to invite members to this organization"
	msgNoManagePermission = "You do not have permission to manage members of this organization"
	msgRoleTooHigh        = "You cannot assign a role higher than your own"
	msgAlreadySent        = "Invitation already sent"
)

var tracer = otel.Tracer("github.com/nikhilbhutani/toolate/internal/membership")

type Deps struct {
	Organizations Organizations
	Memberships   Memberships
	Invitations   Invitations
	Branches      Branches
	Directory     Directory
	Sink          notify.Sink
	// Locker and Auditor are optional.
	Locker  Locker
	Auditor Auditor
	AppURL  string
}

type Service struct {
	orgs        Organizations
	members     Memberships
	invitations Invitations
	branches    Branches
	dir         Directory
	sink        notify.Sink
	locker      Locker
	auditor     Auditor
	appURL      string
}

func NewService(d Deps) *Service {
	return &Service{
		orgs:        d.Organizations,
		members:     d.Memberships,
		invitations: d.Invitations,
		branches:    d.Branches,
		dir:         d.Directory,
		sink:        d.Sink,
		locker:      d.Locker,
		auditor:     d.Auditor,
		appURL:      d.AppURL,
	}
}

func requireActor(ctx context.Context) (*models.User, error) {
	u := tenant.UserFromContext(ctx)
	if u == nil {
		return nil, apperr.New(apperr.Unauthenticated, "You must be logged in")
	}
	return u, nil
}

// callerRole returns the actor's role in the organization. Non-members get
// PermissionDenied with deniedMsg.
func (s *Service) callerRole(ctx context.Context, orgID, userID uuid.UUID, deniedMsg string) (models.OrgRole, error) {
	m, err := s.members.GetMember(ctx, orgID, userID)
	if apperr.Is(err, apperr.NotFound) {
		return "", apperr.New(apperr.PermissionDenied, deniedMsg)
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "membership."+op, trace.WithAttributes(attrs...))
}

// finish closes the span and counts the outcome.
func finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	metrics.ObserveOperation(op, outcome)
	span.End()
}

func (s *Service) record(ctx context.Context, entry audit.LogEntry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, entry); err != nil {
		slog.WarnContext(ctx, "audit log failed", "action", entry.Action, "organization_id", entry.OrganizationID, "error", err)
	}
}

// compensate runs a cleanup step that must survive the request being
// cancelled. Failures are logged; the caller reports the original error.
func compensate(ctx context.Context, target string, fn func(context.Context) error) {
	err := fn(context.WithoutCancel(ctx))
	metrics.ObserveCompensation(target, err == nil)
	if err != nil {
		slog.ErrorContext(ctx, "compensating delete failed", "target", target, "error", err)
		return
	}
	slog.InfoContext(ctx, "compensating delete applied", "target", target)
}

func (s *Service) inviterName(ctx context.Context, actor *models.User) string {
	name, err := s.dir.FullName(ctx, actor.ID)
	if err != nil {
		slog.WarnContext(ctx, "lookup inviter name", "user_id", actor.ID, "error", err)
	}
	if name == "" {
		return actor.Email
	}
	return name
}

func (s *Service) organizationName(ctx context.Context, orgID uuid.UUID) string {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		slog.WarnContext(ctx, "lookup organization name", "organization_id", orgID, "error", err)
		return "your organization"
	}
	return org.Name
}

// sendInvitation hands the email to the sink. Delivery failures are logged
// and counted but never reach the caller.
func (s *Service) sendInvitation(ctx context.Context, actor *models.User, inv *models.Invitation, acceptURL string) {
	msg := notify.InvitationEmail{
		To:               inv.Email,
		InviterName:      s.inviterName(ctx, actor),
		OrganizationName: s.organizationName(ctx, inv.OrganizationID),
		Role:             inv.Role,
		AcceptURL:        acceptURL,
	}
	out, err := s.sink.SendInvitation(ctx, msg)
	metrics.ObserveEmail("invitation", err == nil && out.OK)
	if err != nil || !out.OK {
		slog.ErrorContext(ctx, "invitation email failed",
			"to", inv.Email, "organization_id", inv.OrganizationID,
			"error", apperr.Wrap(apperr.Transport, "email delivery failed", err))
		return
	}
	slog.InfoContext(ctx, "invitation email sent", "to", inv.Email, "mock", out.Mock)
}

func (s *Service) sendWelcome(ctx context.Context, to string, orgID uuid.UUID) {
	out, err := s.sink.SendWelcome(ctx, notify.WelcomeEmail{
		To:               to,
		OrganizationName: s.organizationName(ctx, orgID),
		DashboardURL:     s.appURL + "/dashboard",
	})
	metrics.ObserveEmail("welcome", err == nil && out.OK)
	if err != nil || !out.OK {
		slog.ErrorContext(ctx, "welcome email failed", "to", to, "organization_id", orgID,
			"error", apperr.Wrap(apperr.Transport, "email delivery failed", err))
	}
}

func isNotFound(err error) bool {
	return apperr.Is(err, apperr.NotFound)
}
