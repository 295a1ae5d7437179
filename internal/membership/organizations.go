package membership

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

type CreateOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type"`
}

func (r CreateOrganizationRequest) normalize() (CreateOrganizationRequest, error) {
	out := CreateOrganizationRequest{
		Name: textnorm.Plain(r.Name),
		Slug: textnorm.Slug(r.Slug),
		Type: textnorm.Plain(r.Type),
	}
	if len([]rune(out.Name)) < 2 {
		return out, apperr.New(apperr.Validation, "Organization name must be at least 2 characters")
	}
	if len(out.Slug) < 2 {
		return out, apperr.New(apperr.Validation, "Slug must be at least 2 characters")
	}
	if out.Type == "" {
		return out, apperr.New(apperr.Validation, "Please select an organization type")
	}
	if !textnorm.ValidSlug(out.Slug) {
		return out, apperr.New(apperr.Validation, "Slug can only contain lowercase letters, numbers, and hyphens")
	}
	return out, nil
}

// CreateOrganization creates an organization owned by the caller. The id is
// generated here so the owner membership can be written without reading the
// organization back.
func (s *Service) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (org *models.Organization, err error) {
	ctx, span := start(ctx, "CreateOrganization", attribute.String("slug", req.Slug))
	defer func() { finish(span, "create_organization", err) }()

	actor := tenant.UserFromContext(ctx)
	if actor == nil {
		return nil, apperr.New(apperr.Unauthenticated, "You must be logged in to create an organization")
	}
	req, err = req.normalize()
	if err != nil {
		return nil, err
	}

	org = &models.Organization{ID: uuid.New(), Name: req.Name, Slug: req.Slug, Type: req.Type}

	if oc, ok := s.orgs.(OwnerCreator); ok {
		if err := oc.CreateWithOwner(ctx, org, actor.ID); err != nil {
			return nil, err
		}
	} else if err := s.createThenJoin(ctx, org, actor.ID); err != nil {
		return nil, err
	}

	s.record(ctx, audit.LogEntry{
		OrganizationID: org.ID,
		Action:         audit.ActionOrganizationCreated,
		ResourceType:   "organization",
		ResourceID:     &org.ID,
		Details:        map[string]any{"slug": org.Slug},
	})
	return org, nil
}

// createThenJoin writes the organization and then the owner membership as
// separate calls, deleting the organization if the membership fails.
func (s *Service) createThenJoin(ctx context.Context, org *models.Organization, ownerID uuid.UUID) error {
	if err := s.orgs.Create(ctx, org); err != nil {
		return err
	}
	err := s.members.AddMember(ctx, &models.OrganizationMember{
		OrganizationID: org.ID,
		UserID:         ownerID,
		Role:           models.OrgRoleOwner,
	})
	if err != nil {
		compensate(ctx, "organization", func(ctx context.Context) error {
			return s.orgs.Delete(ctx, org.ID)
		})
		return tenant.MembershipFailed(err)
	}
	return nil
}
