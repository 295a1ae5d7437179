package membership

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

const msgNoBranchPermission = "You do not have permission to manage members of this branch"

// ListBranchMembers returns every branch membership in the organization with
// its email and branch name.
func (s *Service) ListBranchMembers(ctx context.Context, orgID uuid.UUID) (views []BranchMemberView, err error) {
	ctx, span := start(ctx, "ListBranchMembers", attribute.String("organization_id", orgID.String()))
	defer func() { finish(span, "list_branch_members", err) }()

	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	rows, err := s.members.ListBranchMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	emails, err := s.dir.Emails(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lookup branch member emails", err)
	}

	views = make([]BranchMemberView, 0, len(rows))
	for _, r := range rows {
		v := BranchMemberView{BranchMember: r.BranchMember, UserEmail: emails[r.UserID], BranchName: r.BranchName}
		if v.UserEmail == "" {
			v.UserEmail = "Unknown"
		}
		if v.BranchName == "" {
			v.BranchName = "Unknown"
		}
		views = append(views, v)
	}
	return views, nil
}

// authorizeBranch loads the branch and checks the caller may manage its
// members: organization managers, or anyone already in the branch.
func (s *Service) authorizeBranch(ctx context.Context, actor *models.User, branchID uuid.UUID) (*models.Branch, error) {
	branch, err := s.branches.Get(ctx, branchID)
	if err != nil {
		return nil, err
	}

	var orgRole models.OrgRole
	m, err := s.members.GetMember(ctx, branch.OrganizationID, actor.ID)
	switch {
	case err == nil:
		orgRole = m.Role
	case !isNotFound(err):
		return nil, err
	}

	inBranch := false
	if !auth.IsOrgManager(orgRole) {
		_, err := s.members.GetBranchMember(ctx, branchID, actor.ID)
		switch {
		case err == nil:
			inBranch = true
		case !isNotFound(err):
			return nil, err
		}
	}
	if !auth.CanManageBranchMembers(orgRole, inBranch) {
		return nil, apperr.New(apperr.PermissionDenied, msgNoBranchPermission)
	}
	return branch, nil
}

type AddBranchMemberRequest struct {
	BranchID uuid.UUID
	Email    string
	Role     models.BranchRole
}

func (s *Service) AddBranchMember(ctx context.Context, req AddBranchMemberRequest) (m *models.BranchMember, err error) {
	ctx, span := start(ctx, "AddBranchMember", attribute.String("branch_id", req.BranchID.String()))
	defer func() { finish(span, "add_branch_member", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	email := textnorm.Email(req.Email)
	if req.BranchID == uuid.Nil || email == "" || req.Role == "" {
		return nil, apperr.New(apperr.Validation, "All fields are required")
	}
	if !req.Role.Valid() {
		return nil, apperr.New(apperr.Validation, "Invalid role")
	}

	branch, err := s.authorizeBranch(ctx, actor, req.BranchID)
	if err != nil {
		return nil, err
	}

	account, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lookup account", err)
	}
	if account == nil {
		return nil, apperr.New(apperr.NotFound, "User must sign up first")
	}

	m = &models.BranchMember{BranchID: branch.ID, UserID: account.ID, Role: req.Role}
	if err := s.members.AddBranchMember(ctx, m); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return nil, apperr.WithMessage(err, "This user is already a member of the branch")
		}
		return nil, err
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: branch.OrganizationID,
		Action:         audit.ActionBranchMemberAdded,
		ResourceType:   "branch_member",
		ResourceID:     &m.ID,
		Details:        map[string]any{"branch_id": branch.ID, "email": email, "role": req.Role},
	})
	return m, nil
}

func (s *Service) RemoveBranchMember(ctx context.Context, branchID, memberID uuid.UUID) (err error) {
	ctx, span := start(ctx, "RemoveBranchMember", attribute.String("branch_id", branchID.String()))
	defer func() { finish(span, "remove_branch_member", err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	branch, err := s.authorizeBranch(ctx, actor, branchID)
	if err != nil {
		return err
	}
	if err := s.members.RemoveBranchMember(ctx, branchID, memberID); err != nil {
		return err
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: branch.OrganizationID,
		Action:         audit.ActionBranchMemberRemoved,
		ResourceType:   "branch_member",
		ResourceID:     &memberID,
		Details:        map[string]any{"branch_id": branchID},
	})
	return nil
}
