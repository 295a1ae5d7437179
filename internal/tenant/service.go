package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/cache"
	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
)

const orgColumns = "id, name, slug, type, plan, is_active, created_at, updated_at"

const slugTakenMessage = "This organization URL is already taken. Please choose another."

// Service is the organization directory. Every query runs with the caller's
// claims so only organizations the caller belongs to are visible.
type Service struct {
	db       database.Beginner
	cache    *cache.Cache
	cacheTTL time.Duration
}

func NewService(db database.Beginner, c *cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{db: db, cache: c, cacheTTL: cacheTTL}
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Type, &o.Plan, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// insertOrganization writes the row without reading it back: until the owner
// membership exists the caller may not be able to see it.
func insertOrganization(ctx context.Context, tx pgx.Tx, org *models.Organization) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if org.Plan == "" {
		org.Plan = "free"
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO organizations (id, name, slug, type, plan, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, true, $6, $6)`,
		org.ID, org.Name, org.Slug, org.Type, org.Plan, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return apperr.Wrap(apperr.Conflict, slugTakenMessage, err)
		}
		return database.Classify(fmt.Errorf("insert organization: %w", err), "Organization not found")
	}
	org.IsActive = true
	org.CreatedAt, org.UpdatedAt = now, now
	return nil
}

// MembershipFailed reports an organization whose owner membership could not
// be written. Permission rejections keep their kind.
func MembershipFailed(err error) error {
	if apperr.Is(database.Classify(err, ""), apperr.PermissionDenied) {
		return apperr.Wrap(apperr.PermissionDenied, "Failed to create organization membership", err)
	}
	return apperr.Wrap(apperr.Conflict, "Failed to create organization membership", err)
}

// Create inserts the organization row only. Callers that use it directly own
// the follow-up owner membership and its compensation.
func (s *Service) Create(ctx context.Context, org *models.Organization) error {
	return database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		return insertOrganization(ctx, tx, org)
	})
}

// CreateWithOwner inserts the organization and its owner membership in one
// transaction.
func (s *Service) CreateWithOwner(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error {
	return database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		if err := insertOrganization(ctx, tx, org); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO organization_members (organization_id, user_id, role) VALUES ($1, $2, $3)`,
			org.ID, ownerID, models.OrgRoleOwner,
		)
		if err != nil {
			return MembershipFailed(fmt.Errorf("insert owner membership: %w", err))
		}
		created, err := scanOrganization(tx.QueryRow(ctx,
			"SELECT "+orgColumns+" FROM organizations WHERE id = $1", org.ID))
		if err != nil {
			return database.Classify(fmt.Errorf("read created organization: %w", err), "Organization not found")
		}
		*org = *created
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM organizations WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete organization: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag,
			"SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)", id)
	})
	return database.Classify(err, "Organization not found")
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org *models.Organization
	err := database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		var err error
		org, err = scanOrganization(tx.QueryRow(ctx,
			"SELECT "+orgColumns+" FROM organizations WHERE id = $1", id))
		if err != nil {
			return fmt.Errorf("get organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return org, nil
}

// GetBySlug resolves an organization visible to the caller. Results are
// cached per caller because visibility depends on membership.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	key := ""
	if u := UserFromContext(ctx); u != nil && s.cache != nil {
		key = "org:slug:" + slug + ":" + u.ID.String()
		var cached models.Organization
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var org *models.Organization
	err := database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		var err error
		org, err = scanOrganization(tx.QueryRow(ctx,
			"SELECT "+orgColumns+" FROM organizations WHERE slug = $1", slug))
		if err != nil {
			return fmt.Errorf("get organization by slug: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, org, s.cacheTTL); err != nil {
			slog.Warn("cache organization", "slug", slug, "error", err)
		}
	}
	return org, nil
}

// ListForUser returns the organizations the user belongs to, oldest
// membership first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	var orgs []models.Organization
	err := database.AsCaller(ctx, s.db, ClaimsFromContext(ctx), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT o.id, o.name, o.slug, o.type, o.plan, o.is_active, o.created_at, o.updated_at
			 FROM organizations o
			 JOIN organization_members m ON m.organization_id = o.id
			 WHERE m.user_id = $1
			 ORDER BY m.joined_at`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("list organizations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			o, err := scanOrganization(rows)
			if err != nil {
				return fmt.Errorf("scan organization: %w", err)
			}
			orgs = append(orgs, *o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, database.Classify(err, "Organization not found")
	}
	return orgs, nil
}
