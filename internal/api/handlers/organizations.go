package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/membership"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

type OrganizationCreator interface {
	CreateOrganization(ctx context.Context, req membership.CreateOrganizationRequest) (*models.Organization, error)
}

type OrganizationReader interface {
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error)
}

type OrganizationHandler struct {
	creator OrganizationCreator
	orgs    OrganizationReader
}

func NewOrganizationHandler(creator OrganizationCreator, orgs OrganizationReader) *OrganizationHandler {
	return &OrganizationHandler{creator: creator, orgs: orgs}
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req membership.CreateOrganizationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	org, err := h.creator.CreateOrganization(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"organization": org})
}

func (h *OrganizationHandler) BySlug(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.GetBySlug(r.Context(), textnorm.Slug(chi.URLParam(r, "slug")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"organization": org})
}

// DashboardInit returns the signed-in user and every organization they belong
// to, which is all the console needs on first load.
func (h *OrganizationHandler) DashboardInit(w http.ResponseWriter, r *http.Request) {
	u := tenant.UserFromContext(r.Context())
	if u == nil {
		writeError(w, r, apperr.New(apperr.Unauthenticated, "You must be logged in"))
		return
	}
	orgs, err := h.orgs.ListForUser(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u, "organizations": orgs})
}
