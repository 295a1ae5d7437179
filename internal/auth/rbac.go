package auth

import "github.com/nikhilbhutani/toolate/internal/models"

// Rank orders organization roles; unknown roles rank zero.
func Rank(r models.OrgRole) int {
	switch r {
	case models.OrgRoleOwner:
		return 4
	case models.OrgRoleAdmin:
		return 3
	case models.OrgRoleManager:
		return 2
	case models.OrgRoleMember:
		return 1
	}
	return 0
}

// IsOrgManager reports the roles allowed to administer an organization's
// branches and staff.
func IsOrgManager(r models.OrgRole) bool {
	return r == models.OrgRoleOwner || r == models.OrgRoleAdmin || r == models.OrgRoleManager
}

func CanManageBranches(r models.OrgRole) bool { return IsOrgManager(r) }

func CanInvite(r models.OrgRole) bool { return IsOrgManager(r) }

// CanAssignRole reports whether actor may give target to someone. Only
// owners grant owner; everyone else grants at most their own rank.
func CanAssignRole(actor, target models.OrgRole) bool {
	if !IsOrgManager(actor) || !target.Valid() {
		return false
	}
	if target == models.OrgRoleOwner {
		return actor == models.OrgRoleOwner
	}
	return Rank(target) <= Rank(actor)
}

// CanModifyMember reports whether actor may change or remove a member who
// currently holds current.
func CanModifyMember(actor, current models.OrgRole) bool {
	return IsOrgManager(actor) && Rank(current) <= Rank(actor)
}

// CanManageBranchMembers allows organization managers, and anyone who
// already belongs to the branch.
func CanManageBranchMembers(orgRole models.OrgRole, inBranch bool) bool {
	return IsOrgManager(orgRole) || inBranch
}

func CanViewAudit(r models.OrgRole) bool {
	return r == models.OrgRoleOwner || r == models.OrgRoleAdmin
}
