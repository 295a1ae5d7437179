// Package branch manages an organization's physical locations.
package branch

import (
	"context"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/metrics"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

type Store interface {
	List(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	Create(ctx context.Context, b *models.Branch) error
	Update(ctx context.Context, b *models.Branch) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Members interface {
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error)
}

type Service struct {
	store   Store
	members Members
}

func NewService(store Store, members Members) *Service {
	return &Service{store: store, members: members}
}

// Input is the editable part of a branch. A nil IsActive leaves the flag
// unchanged on update and defaults to active on create.
type Input struct {
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Geohash   string   `json:"geohash"`
	IsActive  *bool    `json:"is_active"`
}

func (in Input) normalize() (Input, error) {
	in.Name = textnorm.Plain(in.Name)
	in.Code = textnorm.BranchCode(in.Code)
	if len([]rune(in.Name)) < 2 {
		return in, apperr.New(apperr.Validation, "Branch name must be at least 2 characters")
	}
	if in.Code == "" {
		return in, apperr.New(apperr.Validation, "Branch code is required")
	}
	if !textnorm.ValidBranchCode(in.Code) {
		return in, apperr.New(apperr.Validation, "Branch code can only contain uppercase letters and numbers")
	}
	return in, nil
}

func (in Input) apply(b *models.Branch) {
	b.Name = in.Name
	b.Code = in.Code
	b.Address = textnorm.Optional(in.Address)
	b.Latitude = nonZero(in.Latitude)
	b.Longitude = nonZero(in.Longitude)
	b.Geohash = textnorm.Optional(in.Geohash)
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
}

// nonZero treats a zero coordinate as unset; the location picker sends 0
// when no point was chosen.
func nonZero(f *float64) *float64 {
	if f == nil || *f == 0 {
		return nil
	}
	return f
}

func (s *Service) authorize(ctx context.Context, orgID uuid.UUID, deniedMsg string) error {
	u := tenant.UserFromContext(ctx)
	if u == nil {
		return apperr.New(apperr.Unauthenticated, "You must be logged in")
	}
	m, err := s.members.GetMember(ctx, orgID, u.ID)
	if apperr.Is(err, apperr.NotFound) {
		return apperr.New(apperr.PermissionDenied, deniedMsg)
	}
	if err != nil {
		return err
	}
	if !auth.CanManageBranches(m.Role) {
		return apperr.New(apperr.PermissionDenied, deniedMsg)
	}
	return nil
}

// denied maps a write that the row policies filtered out, or rejected, to
// the permission message for that operation.
func denied(err error, msg string) error {
	if apperr.Is(err, apperr.NotFound) || apperr.Is(err, apperr.PermissionDenied) {
		return apperr.Wrap(apperr.PermissionDenied, msg, err)
	}
	return err
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error) {
	if tenant.UserFromContext(ctx) == nil {
		return nil, apperr.New(apperr.Unauthenticated, "You must be logged in")
	}
	branches, err := s.store.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if branches == nil {
		branches = []models.Branch{}
	}
	return branches, nil
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in Input) (b *models.Branch, err error) {
	defer func() { metrics.ObserveOperation("create_branch", outcome(err)) }()

	if orgID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "Organization is required")
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}
	const msg = "You do not have permission to create branches for this organization"
	if err := s.authorize(ctx, orgID, msg); err != nil {
		return nil, err
	}

	b = &models.Branch{OrganizationID: orgID, IsActive: true}
	in.apply(b)
	if err := s.store.Create(ctx, b); err != nil {
		if apperr.Is(err, apperr.PermissionDenied) {
			return nil, apperr.WithMessage(err, msg)
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (b *models.Branch, err error) {
	defer func() { metrics.ObserveOperation("update_branch", outcome(err)) }()

	if id == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "Branch ID is required")
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}
	b, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.WithMessage(err, "Branch not found")
	}
	const msg = "You do not have permission to update this branch"
	if err := s.authorize(ctx, b.OrganizationID, msg); err != nil {
		return nil, err
	}

	in.apply(b)
	if err := s.store.Update(ctx, b); err != nil {
		return nil, denied(err, msg)
	}
	return b, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { metrics.ObserveOperation("delete_branch", outcome(err)) }()

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return apperr.WithMessage(err, "Branch not found")
	}
	const msg = "You do not have permission to delete this branch"
	if err := s.authorize(ctx, b.OrganizationID, msg); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return denied(err, msg)
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}
