package membership

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/identity"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/store"
)

type Organizations interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Create(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// OwnerCreator is implemented by organization directories that can write an
// organization and its owner membership atomically.
type OwnerCreator interface {
	CreateWithOwner(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error
}

type Memberships interface {
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error)
	GetMemberByID(ctx context.Context, orgID, id uuid.UUID) (*models.OrganizationMember, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error)
	AddMember(ctx context.Context, m *models.OrganizationMember) error
	JoinFromInvitation(ctx context.Context, inv *models.Invitation, userID uuid.UUID) (bool, error)
	UpdateMemberRole(ctx context.Context, orgID, id uuid.UUID, role models.OrgRole) error
	RemoveMember(ctx context.Context, orgID, id uuid.UUID) error
	CountOwners(ctx context.Context, orgID uuid.UUID) (int, error)

	GetBranchMember(ctx context.Context, branchID, userID uuid.UUID) (*models.BranchMember, error)
	ListBranchMembers(ctx context.Context, orgID uuid.UUID) ([]store.BranchMemberRow, error)
	AddBranchMember(ctx context.Context, m *models.BranchMember) error
	RemoveBranchMember(ctx context.Context, branchID, id uuid.UUID) error
}

type Invitations interface {
	FindPending(ctx context.Context, orgID uuid.UUID, email string) (*models.Invitation, error)
	ListPending(ctx context.Context, orgID uuid.UUID) ([]models.Invitation, error)
	ListPendingByEmail(ctx context.Context, email string) ([]models.Invitation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	Create(ctx context.Context, inv *models.Invitation) error
	Replace(ctx context.Context, oldID uuid.UUID, next *models.Invitation) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateRole(ctx context.Context, id uuid.UUID, role models.OrgRole) error
	Resolve(ctx context.Context, id uuid.UUID) error
}

type Branches interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Branch, error)
}

type Directory interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Emails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	FullName(ctx context.Context, id uuid.UUID) (string, error)
	Provision(ctx context.Context, email string, meta identity.ProvisionMeta) (*identity.Provisioned, error)
	Resend(ctx context.Context, email string) (*identity.Provisioned, error)
}

// Locker is a best-effort mutual exclusion on (organization, email).
type Locker interface {
	Acquire(ctx context.Context, orgID, email string) (release func(), acquired bool, err error)
}

type Auditor interface {
	Log(ctx context.Context, entry audit.LogEntry) error
}
