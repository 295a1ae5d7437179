package membership

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/identity"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

type InviteRequest struct {
	OrganizationID uuid.UUID
	Email          string
	Role           models.OrgRole
}

// InviteResult reports which path an invitation took. Exactly one of Direct
// and InvitationSent is set.
type InviteResult struct {
	Direct         bool       `json:"direct,omitempty"`
	InvitationSent bool       `json:"invitationSent,omitempty"`
	MemberID       *uuid.UUID `json:"member_id,omitempty"`
	InvitationID   *uuid.UUID `json:"invitation_id,omitempty"`
}

// Invite adds email to the organization with role. An existing account is
// added as a member immediately; otherwise a pending invitation is recorded
// and an account is provisioned for the address.
func (s *Service) Invite(ctx context.Context, req InviteRequest) (res *InviteResult, err error) {
	ctx, span := start(ctx, "Invite", attribute.String("organization_id", req.OrganizationID.String()))
	defer func() { finish(span, "invite", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	email := textnorm.Email(req.Email)
	if email == "" || req.Role == "" || req.OrganizationID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "All fields are required")
	}
	if !textnorm.ValidEmail(email) {
		return nil, apperr.New(apperr.Validation, "Invalid email")
	}
	if !req.Role.Valid() {
		return nil, apperr.New(apperr.Validation, "Invalid role")
	}

	callerRole, err := s.callerRole(ctx, req.OrganizationID, actor.ID, msgNoInvitePermission)
	if err != nil {
		return nil, err
	}
	if !auth.CanInvite(callerRole) {
		return nil, apperr.New(apperr.PermissionDenied, msgNoInvitePermission)
	}
	if !auth.CanAssignRole(callerRole, req.Role) {
		return nil, apperr.New(apperr.PermissionDenied, msgRoleTooHigh)
	}

	release, err := s.lock(ctx, req.OrganizationID, email)
	if err != nil {
		return nil, err
	}
	defer release()

	pending, err := s.invitations.FindPending(ctx, req.OrganizationID, email)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, apperr.New(apperr.DuplicateInvitation, msgAlreadySent)
	}

	account, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lookup account", err)
	}
	if account != nil {
		return s.addExistingAccount(ctx, actor, req.OrganizationID, account, req.Role)
	}
	return s.inviteNewAccount(ctx, actor, req.OrganizationID, email, req.Role)
}

// lock takes the invite lock when a locker is configured. Locker outages are
// logged and ignored; the pending-invitation index still holds.
func (s *Service) lock(ctx context.Context, orgID uuid.UUID, email string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, acquired, err := s.locker.Acquire(ctx, orgID.String(), email)
	if err != nil {
		slog.WarnContext(ctx, "invite lock unavailable", "organization_id", orgID, "error", err)
		return func() {}, nil
	}
	if !acquired {
		return nil, apperr.New(apperr.DuplicateInvitation, msgAlreadySent)
	}
	return release, nil
}

func (s *Service) addExistingAccount(ctx context.Context, actor *models.User, orgID uuid.UUID, account *models.Account, role models.OrgRole) (*InviteResult, error) {
	_, err := s.members.GetMember(ctx, orgID, account.ID)
	if err == nil {
		return nil, apperr.New(apperr.Conflict, "This user is already a member of the organization")
	}
	if !isNotFound(err) {
		return nil, err
	}

	m := &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         account.ID,
		Role:           role,
		InvitedBy:      &actor.ID,
	}
	if err := s.members.AddMember(ctx, m); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return nil, apperr.WithMessage(err, "This user is already a member of the organization")
		}
		return nil, err
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: orgID,
		Action:         audit.ActionMemberAdded,
		ResourceType:   "organization_member",
		ResourceID:     &m.ID,
		Details:        map[string]any{"email": account.Email, "role": role},
	})
	return &InviteResult{Direct: true, MemberID: &m.ID}, nil
}

// inviteNewAccount runs in two phases.
//
// Phase 1 commits the pending invitation. Phase 2 asks the identity
// directory for the account. The auth schema triggers in
// migrations/003_new_user_trigger.sql join a confirmed account to every
// organization holding a pending invitation for its address, and with
// auto-confirm that happens inside the provisioning call, so phase 1 must be
// committed first. If phase 2 fails the phase 1 row is deleted again.
func (s *Service) inviteNewAccount(ctx context.Context, actor *models.User, orgID uuid.UUID, email string, role models.OrgRole) (*InviteResult, error) {
	inv := &models.Invitation{
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		InvitedBy:      &actor.ID,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}

	prov, err := s.dir.Provision(ctx, email, identity.ProvisionMeta{
		OrganizationID: orgID,
		Role:           role,
		InvitedBy:      actor.ID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "provision account failed", "organization_id", orgID, "error", err)
		compensate(ctx, "invitation", func(ctx context.Context) error {
			return s.invitations.Delete(ctx, inv.ID)
		})
		msg := "Failed to create user"
		if errors.Is(err, identity.ErrAccountExists) {
			msg = "An account for this email was just created. Please try again."
		}
		return nil, apperr.Wrap(apperr.ProvisioningFailed, msg, err)
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: orgID,
		Action:         audit.ActionMemberInvited,
		ResourceType:   "invitation",
		ResourceID:     &inv.ID,
		Details:        map[string]any{"email": email, "role": role},
	})

	if prov.ActionLink != "" {
		s.sendInvitation(ctx, actor, inv, prov.ActionLink)
	}
	return &InviteResult{InvitationSent: true, InvitationID: &inv.ID}, nil
}

type ResendResult struct {
	Invitation *models.Invitation `json:"invitation"`
	Message    string             `json:"message"`
	// Joined is set when the invitee became a member while the invitation
	// was being re-issued. Invitation is nil then.
	Joined bool `json:"joined,omitempty"`
}

// Resend re-issues a pending invitation. The old row is replaced by a fresh
// one with a new id and timestamp in a single transaction.
func (s *Service) Resend(ctx context.Context, invitationID uuid.UUID) (res *ResendResult, err error) {
	ctx, span := start(ctx, "Resend", attribute.String("invitation_id", invitationID.String()))
	defer func() { finish(span, "resend", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return nil, apperr.WithMessage(err, "Invitation not found")
	}
	if inv.Status != models.InvitationPending {
		return nil, apperr.New(apperr.NotFound, "Invitation not found")
	}

	callerRole, err := s.callerRole(ctx, inv.OrganizationID, actor.ID, msgNoInvitePermission)
	if err != nil {
		return nil, err
	}
	if !auth.CanInvite(callerRole) {
		return nil, apperr.New(apperr.PermissionDenied, msgNoInvitePermission)
	}
	if !auth.CanAssignRole(callerRole, inv.Role) {
		return nil, apperr.New(apperr.PermissionDenied, msgRoleTooHigh)
	}

	prov, err := s.dir.Provision(ctx, inv.Email, identity.ProvisionMeta{
		OrganizationID: inv.OrganizationID,
		Role:           inv.Role,
		InvitedBy:      actor.ID,
	})
	if errors.Is(err, identity.ErrAccountExists) {
		prov, err = s.dir.Resend(ctx, inv.Email)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ProvisioningFailed, "Failed to resend invitation", err)
	}

	next := &models.Invitation{
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		Role:           inv.Role,
		InvitedBy:      &actor.ID,
	}
	if err := s.invitations.Replace(ctx, inv.ID, next); err != nil {
		// Provisioning an account that is confirmed on creation resolves its
		// pending invitations before Replace runs.
		if apperr.Is(err, apperr.NotFound) && s.joinedMeanwhile(ctx, inv, prov) {
			return &ResendResult{Joined: true, Message: "User has already joined the organization"}, nil
		}
		return nil, err
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: inv.OrganizationID,
		Action:         audit.ActionInvitationResent,
		ResourceType:   "invitation",
		ResourceID:     &next.ID,
		Details:        map[string]any{"email": inv.Email, "replaces": inv.ID},
	})

	if prov.ActionLink != "" {
		s.sendInvitation(ctx, actor, next, prov.ActionLink)
	}
	return &ResendResult{Invitation: next, Message: "Invitation resent successfully"}, nil
}

func (s *Service) joinedMeanwhile(ctx context.Context, inv *models.Invitation, prov *identity.Provisioned) bool {
	userID := prov.UserID
	if userID == uuid.Nil {
		acct, err := s.dir.FindByEmail(ctx, inv.Email)
		if err != nil || acct == nil {
			return false
		}
		userID = acct.ID
	}
	_, err := s.members.GetMember(ctx, inv.OrganizationID, userID)
	return err == nil
}

type AcceptResult struct {
	Joined []uuid.UUID `json:"joined"`
}

// AcceptInvitations turns every pending invitation for the caller's email
// into a membership. It is idempotent with the database triggers that do the
// same on account confirmation.
func (s *Service) AcceptInvitations(ctx context.Context) (res *AcceptResult, err error) {
	ctx, span := start(ctx, "AcceptInvitations")
	defer func() { finish(span, "accept", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	email := textnorm.Email(actor.Email)
	if email == "" {
		return nil, apperr.New(apperr.Validation, "Your account has no email address")
	}

	invs, err := s.invitations.ListPendingByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	res = &AcceptResult{Joined: []uuid.UUID{}}
	for i := range invs {
		inv := &invs[i]
		inserted, err := s.members.JoinFromInvitation(ctx, inv, actor.ID)
		if err != nil {
			return nil, err
		}
		if err := s.invitations.Resolve(ctx, inv.ID); err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		res.Joined = append(res.Joined, inv.OrganizationID)
		s.record(ctx, audit.LogEntry{
			OrganizationID: inv.OrganizationID,
			Action:         audit.ActionInvitationsAccepted,
			ResourceType:   "invitation",
			ResourceID:     &inv.ID,
			Details:        map[string]any{"role": inv.Role},
		})
		s.sendWelcome(ctx, email, inv.OrganizationID)
	}
	return res, nil
}
