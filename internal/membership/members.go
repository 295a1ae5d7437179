package membership

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/models"
)

// ListMembers returns the organization's members, earliest joined first,
// followed by its pending invitations.
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) (views []MemberView, err error) {
	ctx, span := start(ctx, "ListMembers", attribute.String("organization_id", orgID.String()))
	defer func() { finish(span, "list_members", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.callerRole(ctx, orgID, actor.ID, "You do not have access to this organization"); err != nil {
		return nil, err
	}

	members, err := s.members.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	emails, err := s.dir.Emails(ctx, ids)
	if err != nil {
		slog.WarnContext(ctx, "lookup member emails", "organization_id", orgID, "error", err)
		emails = map[uuid.UUID]string{}
	}

	pending, err := s.invitations.ListPending(ctx, orgID)
	if err != nil {
		return nil, err
	}

	views = make([]MemberView, 0, len(members)+len(pending))
	for _, m := range members {
		email := emails[m.UserID]
		if email == "" && m.UserID == actor.ID {
			email = actor.Email
		}
		views = append(views, RealMember{Membership: m, Email: email})
	}
	for _, inv := range pending {
		views = append(views, PendingMember{Invitation: inv})
	}
	return views, nil
}

// UpdateMemberRole changes the role of a member or of a pending invitation.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID uuid.UUID, ref MemberRef, role models.OrgRole) (err error) {
	ctx, span := start(ctx, "UpdateMemberRole",
		attribute.String("organization_id", orgID.String()),
		attribute.String("member", ref.String()))
	defer func() { finish(span, "update_role", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	if !role.Valid() {
		return apperr.New(apperr.Validation, "Invalid role")
	}

	callerRole, err := s.callerRole(ctx, orgID, actor.ID, msgNoManagePermission)
	if err != nil {
		return err
	}
	if !auth.IsOrgManager(callerRole) {
		return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
	}
	if !auth.CanAssignRole(callerRole, role) {
		return apperr.New(apperr.PermissionDenied, msgRoleTooHigh)
	}

	var from models.OrgRole
	switch ref.Kind {
	case KindPending:
		inv, err := s.pendingInOrg(ctx, orgID, ref.ID)
		if err != nil {
			return err
		}
		if !auth.CanModifyMember(callerRole, inv.Role) {
			return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
		}
		from = inv.Role
		if err := s.invitations.UpdateRole(ctx, inv.ID, role); err != nil {
			return err
		}

	case KindMember:
		m, err := s.members.GetMemberByID(ctx, orgID, ref.ID)
		if err != nil {
			return err
		}
		if m.UserID == actor.ID {
			return apperr.New(apperr.PermissionDenied, "You cannot change your own role")
		}
		if !auth.CanModifyMember(callerRole, m.Role) {
			return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
		}
		if m.Role == models.OrgRoleOwner && role != models.OrgRoleOwner {
			if err := s.ensureAnotherOwner(ctx, orgID); err != nil {
				return err
			}
		}
		from = m.Role
		if err := s.members.UpdateMemberRole(ctx, orgID, m.ID, role); err != nil {
			return err
		}

	default:
		return apperr.New(apperr.Validation, "Invalid member id")
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: orgID,
		Action:         audit.ActionMemberRoleChanged,
		ResourceType:   ref.Kind.String(),
		ResourceID:     &ref.ID,
		Details:        map[string]any{"from": from, "to": role},
	})
	return nil
}

// RemoveMember deletes a membership, or cancels a pending invitation. Only
// the addressed row is touched.
func (s *Service) RemoveMember(ctx context.Context, orgID uuid.UUID, ref MemberRef) (err error) {
	ctx, span := start(ctx, "RemoveMember",
		attribute.String("organization_id", orgID.String()),
		attribute.String("member", ref.String()))
	defer func() { finish(span, "remove_member", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	callerRole, err := s.callerRole(ctx, orgID, actor.ID, msgNoManagePermission)
	if err != nil {
		return err
	}
	if !auth.IsOrgManager(callerRole) {
		return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
	}

	switch ref.Kind {
	case KindPending:
		inv, err := s.pendingInOrg(ctx, orgID, ref.ID)
		if err != nil {
			return err
		}
		if !auth.CanModifyMember(callerRole, inv.Role) {
			return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
		}
		if err := s.invitations.Delete(ctx, inv.ID); err != nil {
			return err
		}
		s.record(ctx, audit.LogEntry{
			OrganizationID: orgID,
			Action:         audit.ActionInvitationCancelled,
			ResourceType:   "invitation",
			ResourceID:     &inv.ID,
			Details:        map[string]any{"email": inv.Email},
		})

	case KindMember:
		m, err := s.members.GetMemberByID(ctx, orgID, ref.ID)
		if err != nil {
			return err
		}
		if !auth.CanModifyMember(callerRole, m.Role) {
			return apperr.New(apperr.PermissionDenied, msgNoManagePermission)
		}
		if m.Role == models.OrgRoleOwner {
			if err := s.ensureAnotherOwner(ctx, orgID); err != nil {
				return err
			}
		}
		if err := s.members.RemoveMember(ctx, orgID, m.ID); err != nil {
			return err
		}
		s.record(ctx, audit.LogEntry{
			OrganizationID: orgID,
			Action:         audit.ActionMemberRemoved,
			ResourceType:   "organization_member",
			ResourceID:     &m.ID,
			Details:        map[string]any{"user_id": m.UserID, "role": m.Role},
		})

	default:
		return apperr.New(apperr.Validation, "Invalid member id")
	}
	return nil
}

// pendingInOrg loads a pending invitation and checks it belongs to orgID.
func (s *Service) pendingInOrg(ctx context.Context, orgID, id uuid.UUID) (*models.Invitation, error) {
	inv, err := s.invitations.Get(ctx, id)
	if err != nil {
		return nil, apperr.WithMessage(err, "Invitation not found")
	}
	if inv.OrganizationID != orgID || inv.Status != models.InvitationPending {
		return nil, apperr.New(apperr.NotFound, "Invitation not found")
	}
	return inv, nil
}

func (s *Service) ensureAnotherOwner(ctx context.Context, orgID uuid.UUID) error {
	owners, err := s.members.CountOwners(ctx, orgID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return apperr.New(apperr.Conflict, "An organization must keep at least one owner")
	}
	return nil
}
