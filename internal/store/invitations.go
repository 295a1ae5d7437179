package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
)

const invitationColumns = "id, organization_id, email, role, status, invited_by, created_at"

// onePendingIndex backs the at-most-one-pending-invitation rule.
const onePendingIndex = "invitations_one_pending_idx"

// InvitationStore is the invitation ledger.
type InvitationStore struct {
	base
}

func NewInvitationStore(db database.Beginner) *InvitationStore {
	return &InvitationStore{base{db: db}}
}

func scanInvitation(row pgx.Row) (models.Invitation, error) {
	var inv models.Invitation
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Status, &inv.InvitedBy, &inv.CreatedAt)
	return inv, err
}

// FindPending returns the pending invitation for email in the organization,
// or nil when there is none.
func (s *InvitationStore) FindPending(ctx context.Context, orgID uuid.UUID, email string) (*models.Invitation, error) {
	var found *models.Invitation
	err := s.run(ctx, func(tx pgx.Tx) error {
		inv, err := scanInvitation(tx.QueryRow(ctx,
			"SELECT "+invitationColumns+" FROM invitations WHERE organization_id = $1 AND email = $2 AND status = 'pending'",
			orgID, email))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find pending invitation: %w", err)
		}
		found = &inv
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Invitation not found")
	}
	return found, nil
}

func (s *InvitationStore) listPending(ctx context.Context, where string, arg any) ([]models.Invitation, error) {
	var out []models.Invitation
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT "+invitationColumns+" FROM invitations WHERE "+where+" AND status = 'pending' ORDER BY created_at",
			arg)
		if err != nil {
			return fmt.Errorf("list pending invitations: %w", err)
		}
		out, err = collect(rows, scanInvitation)
		if err != nil {
			return fmt.Errorf("scan invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Invitation not found")
	}
	return out, nil
}

// ListPending returns the organization's pending invitations, oldest first.
func (s *InvitationStore) ListPending(ctx context.Context, orgID uuid.UUID) ([]models.Invitation, error) {
	return s.listPending(ctx, "organization_id = $1", orgID)
}

// ListPendingByEmail returns every pending invitation addressed to email.
func (s *InvitationStore) ListPendingByEmail(ctx context.Context, email string) ([]models.Invitation, error) {
	return s.listPending(ctx, "email = $1", email)
}

func (s *InvitationStore) Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRow(ctx,
			"SELECT "+invitationColumns+" FROM invitations WHERE id = $1", id))
		if err != nil {
			return fmt.Errorf("get invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Invitation not found")
	}
	return &inv, nil
}

// Create inserts a pending invitation and fills in its id, status and
// created_at. A second pending row for the same address is rejected with
// DuplicateInvitation.
func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO invitations (organization_id, email, role, invited_by)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, status, created_at`,
			inv.OrganizationID, inv.Email, inv.Role, inv.InvitedBy,
		).Scan(&inv.ID, &inv.Status, &inv.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if database.IsUniqueViolation(err, onePendingIndex) {
		return apperr.Wrap(apperr.DuplicateInvitation, "Invitation already sent", err)
	}
	return database.Classify(err, "Organization not found")
}

// Replace deletes old and inserts its successor in one transaction, so the
// organization never has two pending rows for the address.
func (s *InvitationStore) Replace(ctx context.Context, oldID uuid.UUID, next *models.Invitation) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM invitations WHERE id = $1 AND status = 'pending'", oldID)
		if err != nil {
			return fmt.Errorf("delete invitation: %w", err)
		}
		if err := database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1 AND status = 'pending')", oldID); err != nil {
			return err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO invitations (organization_id, email, role, invited_by)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, status, created_at`,
			next.OrganizationID, next.Email, next.Role, next.InvitedBy,
		).Scan(&next.ID, &next.Status, &next.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if database.IsUniqueViolation(err, onePendingIndex) {
		return apperr.Wrap(apperr.DuplicateInvitation, "Invitation already sent", err)
	}
	return database.Classify(err, "Invitation not found")
}

func (s *InvitationStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM invitations WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete invitation: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)", id)
	})
	return database.Classify(err, "Invitation not found")
}

func (s *InvitationStore) UpdateRole(ctx context.Context, id uuid.UUID, role models.OrgRole) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE invitations SET role = $2 WHERE id = $1 AND status = 'pending'", id, role)
		if err != nil {
			return fmt.Errorf("update invitation role: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1 AND status = 'pending')", id)
	})
	return database.Classify(err, "Invitation not found")
}

// Resolve marks a pending invitation as accepted.
func (s *InvitationStore) Resolve(ctx context.Context, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "UPDATE invitations SET status = 'resolved' WHERE id = $1 AND status = 'pending'", id)
		if err != nil {
			return fmt.Errorf("resolve invitation: %w", err)
		}
		return nil
	})
	return database.Classify(err, "Invitation not found")
}
