// Package identity is the directory of user accounts: lookups against the
// auth schema and provisioning through the auth service's admin API.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/models"
)

// Querier is satisfied by *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Delivery selects who emails a newly provisioned account.
type Delivery string

const (
	// DeliverByDirectory lets the auth service send its own invite email.
	DeliverByDirectory Delivery = "directory"
	// DeliverBySink returns the action link so the caller can send the email.
	DeliverBySink Delivery = "sink"
)

// ProvisionMeta is stored on the new account's user metadata.
type ProvisionMeta struct {
	OrganizationID uuid.UUID
	Role           models.OrgRole
	InvitedBy      uuid.UUID
}

// Provisioned describes an account request. ActionLink is set only when the
// directory did not send the email itself.
type Provisioned struct {
	UserID     uuid.UUID
	ActionLink string
}

type Directory struct {
	db         Querier
	gotrue     *GoTrueClient
	delivery   Delivery
	redirectTo string
}

func NewDirectory(db Querier, gotrue *GoTrueClient, delivery Delivery, appURL string) *Directory {
	return &Directory{db: db, gotrue: gotrue, delivery: delivery, redirectTo: appURL + "/auth/callback"}
}

// Delivery reports whether provisioning hands back a link for the caller to
// send.
func (d *Directory) Delivery() Delivery {
	return d.delivery
}

// FindByEmail returns the account registered for email, or nil.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := d.db.QueryRow(ctx,
		"SELECT id, email FROM auth.users WHERE lower(email) = lower($1) LIMIT 1", email,
	).Scan(&a.ID, &a.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &a, nil
}

// Emails resolves display emails for a batch of user ids in one query. Ids
// without a profile are absent from the map.
func (d *Directory) Emails(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.db.Query(ctx, "SELECT id, email FROM user_profiles WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("lookup emails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out[id] = email
	}
	return out, rows.Err()
}

// FullName returns the profile name for id, or "" when unset.
func (d *Directory) FullName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := d.db.QueryRow(ctx, "SELECT full_name FROM user_profiles WHERE id = $1", id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup full name: %w", err)
	}
	return name, nil
}

func (m ProvisionMeta) data() map[string]any {
	return map[string]any{
		"organization_id": m.OrganizationID.String(),
		"role":            string(m.Role),
		"invited_by":      m.InvitedBy.String(),
	}
}

// Provision requests a new account for email. ErrAccountExists is returned
// when the address is already registered.
func (d *Directory) Provision(ctx context.Context, email string, meta ProvisionMeta) (*Provisioned, error) {
	if d.delivery == DeliverBySink {
		return d.gotrue.GenerateLink(ctx, "invite", email, meta.data(), d.redirectTo)
	}
	return d.gotrue.Invite(ctx, email, meta.data(), d.redirectTo)
}

// Resend issues a fresh sign-in link to an account that already exists.
func (d *Directory) Resend(ctx context.Context, email string) (*Provisioned, error) {
	if d.delivery == DeliverBySink {
		return d.gotrue.GenerateLink(ctx, "magiclink", email, nil, d.redirectTo)
	}
	if err := d.gotrue.SendMagicLink(ctx, email, d.redirectTo); err != nil {
		return nil, err
	}
	return &Provisioned{}, nil
}
