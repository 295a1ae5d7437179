package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
)

const memberColumns = "id, organization_id, user_id, role, joined_at, invited_by"

// MembershipStore holds organization and branch memberships.
type MembershipStore struct {
	base
}

func NewMembershipStore(db database.Beginner) *MembershipStore {
	return &MembershipStore{base{db: db}}
}

func scanMember(row pgx.Row) (models.OrganizationMember, error) {
	var m models.OrganizationMember
	err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.JoinedAt, &m.InvitedBy)
	return m, err
}

// GetMember returns the user's membership in the organization.
func (s *MembershipStore) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	var m models.OrganizationMember
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		m, err = scanMember(tx.QueryRow(ctx,
			"SELECT "+memberColumns+" FROM organization_members WHERE organization_id = $1 AND user_id = $2",
			orgID, userID))
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Member not found")
	}
	return &m, nil
}

func (s *MembershipStore) GetMemberByID(ctx context.Context, orgID, id uuid.UUID) (*models.OrganizationMember, error) {
	var m models.OrganizationMember
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		m, err = scanMember(tx.QueryRow(ctx,
			"SELECT "+memberColumns+" FROM organization_members WHERE organization_id = $1 AND id = $2",
			orgID, id))
		if err != nil {
			return fmt.Errorf("get member by id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Member not found")
	}
	return &m, nil
}

// ListMembers returns the organization's memberships, earliest joined first.
func (s *MembershipStore) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	var members []models.OrganizationMember
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT "+memberColumns+" FROM organization_members WHERE organization_id = $1 ORDER BY joined_at",
			orgID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		members, err = collect(rows, scanMember)
		if err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return members, nil
}

// AddMember inserts m and fills in its id and joined_at. The row is read back
// by a separate statement so a caller adding their own first membership can
// already see it.
func (s *MembershipStore) AddMember(ctx context.Context, m *models.OrganizationMember) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := s.run(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO organization_members (id, organization_id, user_id, role, invited_by)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.OrganizationID, m.UserID, m.Role, m.InvitedBy,
		)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		err = tx.QueryRow(ctx, "SELECT joined_at FROM organization_members WHERE id = $1", m.ID).Scan(&m.JoinedAt)
		if err != nil {
			return fmt.Errorf("read member: %w", err)
		}
		return nil
	})
	return database.Classify(err, "Organization not found")
}

// JoinFromInvitation adds the membership an invitation describes, leaving an
// existing membership untouched. It reports whether a row was inserted.
func (s *MembershipStore) JoinFromInvitation(ctx context.Context, inv *models.Invitation, userID uuid.UUID) (bool, error) {
	var inserted bool
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO organization_members (organization_id, user_id, role, invited_by)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (organization_id, user_id) DO NOTHING`,
			inv.OrganizationID, userID, inv.Role, inv.InvitedBy,
		)
		if err != nil {
			return fmt.Errorf("join from invitation: %w", err)
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, database.Classify(err, "Organization not found")
}

func (s *MembershipStore) UpdateMemberRole(ctx context.Context, orgID, id uuid.UUID, role models.OrgRole) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND id = $2",
			orgID, id, role)
		if err != nil {
			return fmt.Errorf("update member role: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM organization_members WHERE organization_id = $1 AND id = $2)", orgID, id)
	})
	return database.Classify(err, "Member not found")
}

func (s *MembershipStore) RemoveMember(ctx context.Context, orgID, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"DELETE FROM organization_members WHERE organization_id = $1 AND id = $2", orgID, id)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM organization_members WHERE organization_id = $1 AND id = $2)", orgID, id)
	})
	return database.Classify(err, "Member not found")
}

func (s *MembershipStore) CountOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	var n int
	err := s.run(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"SELECT count(*) FROM organization_members WHERE organization_id = $1 AND role = 'owner'",
			orgID).Scan(&n)
		if err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		return nil
	})
	return n, database.Classify(err, "Organization not found")
}

// BranchMemberRow is a branch membership joined with its branch for the
// organization-wide listing.
type BranchMemberRow struct {
	models.BranchMember
	BranchName string
}

const branchMemberColumns = "bm.id, bm.branch_id, bm.user_id, bm.role, bm.joined_at"

func scanBranchMember(row pgx.Row) (models.BranchMember, error) {
	var m models.BranchMember
	err := row.Scan(&m.ID, &m.BranchID, &m.UserID, &m.Role, &m.JoinedAt)
	return m, err
}

// GetBranchMember returns the user's membership in the branch.
func (s *MembershipStore) GetBranchMember(ctx context.Context, branchID, userID uuid.UUID) (*models.BranchMember, error) {
	var m models.BranchMember
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		m, err = scanBranchMember(tx.QueryRow(ctx,
			"SELECT "+branchMemberColumns+" FROM branch_members bm WHERE bm.branch_id = $1 AND bm.user_id = $2",
			branchID, userID))
		if err != nil {
			return fmt.Errorf("get branch member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Branch member not found")
	}
	return &m, nil
}

// ListBranchMembers returns every branch membership in the organization,
// earliest joined first.
func (s *MembershipStore) ListBranchMembers(ctx context.Context, orgID uuid.UUID) ([]BranchMemberRow, error) {
	var out []BranchMemberRow
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+branchMemberColumns+`, b.name
			 FROM branch_members bm
			 JOIN branches b ON b.id = bm.branch_id
			 WHERE b.organization_id = $1
			 ORDER BY bm.joined_at`,
			orgID)
		if err != nil {
			return fmt.Errorf("list branch members: %w", err)
		}
		out, err = collect(rows, func(row pgx.Row) (BranchMemberRow, error) {
			var r BranchMemberRow
			err := row.Scan(&r.ID, &r.BranchID, &r.UserID, &r.Role, &r.JoinedAt, &r.BranchName)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("scan branch member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return out, nil
}

func (s *MembershipStore) AddBranchMember(ctx context.Context, m *models.BranchMember) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO branch_members (branch_id, user_id, role) VALUES ($1, $2, $3)
			 RETURNING id, joined_at`,
			m.BranchID, m.UserID, m.Role,
		).Scan(&m.ID, &m.JoinedAt)
		if err != nil {
			return fmt.Errorf("insert branch member: %w", err)
		}
		return nil
	})
	return database.Classify(err, "Branch not found")
}

func (s *MembershipStore) RemoveBranchMember(ctx context.Context, branchID, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM branch_members WHERE branch_id = $1 AND id = $2", branchID, id)
		if err != nil {
			return fmt.Errorf("delete branch member: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM branch_members WHERE branch_id = $1 AND id = $2)", branchID, id)
	})
	return database.Classify(err, "Branch member not found")
}
