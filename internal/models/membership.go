package models

import (
	"time"

	"github.com/google/uuid"
)

type OrgRole string

const (
	OrgRoleOwner   OrgRole = "owner"
	OrgRoleAdmin   OrgRole = "admin"
	OrgRoleManager OrgRole = "manager"
	OrgRoleMember  OrgRole = "member"
)

// OrgRoles lists the organization roles from most to least privileged.
var OrgRoles = []OrgRole{OrgRoleOwner, OrgRoleAdmin, OrgRoleManager, OrgRoleMember}

func (r OrgRole) Valid() bool {
	switch r {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleManager, OrgRoleMember:
		return true
	}
	return false
}

type BranchRole string

const (
	BranchRoleManager BranchRole = "manager"
	BranchRoleStaff   BranchRole = "staff"
	BranchRoleViewer  BranchRole = "viewer"
)

func (r BranchRole) Valid() bool {
	switch r {
	case BranchRoleManager, BranchRoleStaff, BranchRoleViewer:
		return true
	}
	return false
}

type OrganizationMember struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrganizationID uuid.UUID  `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Role           OrgRole    `json:"role" db:"role"`
	JoinedAt       time.Time  `json:"joined_at" db:"joined_at"`
	InvitedBy      *uuid.UUID `json:"invited_by,omitempty" db:"invited_by"`
}

type BranchMember struct {
	ID       uuid.UUID  `json:"id" db:"id"`
	BranchID uuid.UUID  `json:"branch_id" db:"branch_id"`
	UserID   uuid.UUID  `json:"user_id" db:"user_id"`
	Role     BranchRole `json:"role" db:"role"`
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
}
