package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

const (
	ActionMemberInvited       = "member.invited"
	ActionMemberAdded         = "member.added"
	ActionInvitationResent    = "invitation.resent"
	ActionMemberRoleChanged   = "member.role_changed"
	ActionMemberRemoved       = "member.removed"
	ActionInvitationCancelled = "invitation.cancelled"
	ActionOrganizationCreated = "organization.created"
	ActionBranchMemberAdded   = "branch_member.added"
	ActionBranchMemberRemoved = "branch_member.removed"
	ActionInvitationsAccepted = "invitations.accepted"
)

type Service struct {
	db database.Beginner
}

func NewService(db database.Beginner) *Service {
	return &Service{db: db}
}

type LogEntry struct {
	OrganizationID uuid.UUID
	Action         string
	ResourceType   string
	ResourceID     *uuid.UUID
	Details        map[string]any
}

// Log records entry against the caller in ctx.
func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	user := tenant.UserFromContext(ctx)

	var userID *uuid.UUID
	if user != nil {
		userID = &user.ID
	}

	details, _ := json.Marshal(entry.Details)
	if entry.Details == nil {
		details = []byte("{}")
	}

	var ip *netip.Addr
	if raw := tenant.ClientIPFromContext(ctx); raw != "" {
		if parsed, err := netip.ParseAddr(raw); err == nil {
			ip = &parsed
		}
	}

	err := database.AsCaller(ctx, s.db, tenant.ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO audit_logs (organization_id, user_id, action, resource_type, resource_id, details, ip_address)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.OrganizationID, userID, entry.Action, entry.ResourceType, entry.ResourceID, details, ip,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type Query struct {
	StartDate *time.Time
	EndDate   *time.Time
	Action    string
	Limit     int
	Offset    int
}

// List returns the organization's audit trail, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, q Query) ([]models.AuditLog, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	query := `SELECT id, organization_id, user_id, action, resource_type, resource_id, details, ip_address, created_at
			  FROM audit_logs WHERE organization_id = $1`
	args := []any{orgID}
	argIdx := 2

	if q.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, q.Action)
		argIdx++
	}
	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	var logs []models.AuditLog
	err := database.AsCaller(ctx, s.db, tenant.ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query audit logs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var l models.AuditLog
			if err := rows.Scan(&l.ID, &l.OrganizationID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
				return fmt.Errorf("scan audit log: %w", err)
			}
			logs = append(logs, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return logs, nil
}
