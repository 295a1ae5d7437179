package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/branch"
	"github.com/nikhilbhutani/toolate/internal/models"
)

type BranchService interface {
	List(ctx context.Context, orgID uuid.UUID) ([]models.Branch, error)
	Create(ctx context.Context, orgID uuid.UUID, in branch.Input) (*models.Branch, error)
	Update(ctx context.Context, id uuid.UUID, in branch.Input) (*models.Branch, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type BranchHandler struct {
	svc BranchService
}

func NewBranchHandler(svc BranchService) *BranchHandler {
	return &BranchHandler{svc: svc}
}

func (h *BranchHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Invalid organization id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	branches, err := h.svc.List(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches, "count": len(branches)})
}

func (h *BranchHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "orgID", "Organization is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in branch.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Create(r.Context(), orgID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"branch": b})
}

func (h *BranchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "branchID", "Branch ID is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in branch.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"branch": b})
}

func (h *BranchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "branchID", "Branch ID is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}
