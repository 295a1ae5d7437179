package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/inventory"
	"github.com/nikhilbhutani/toolate/internal/models"
)

type InventoryService interface {
	List(ctx context.Context, branchID uuid.UUID) ([]models.InventoryItem, error)
	Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	Create(ctx context.Context, branchID uuid.UUID, in inventory.CreateInput) (*models.InventoryItem, error)
	Update(ctx context.Context, id uuid.UUID, in inventory.UpdateInput) (*models.InventoryItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type InventoryHandler struct {
	svc InventoryService
}

func NewInventoryHandler(svc InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuidParam(r, "branchID", "Branch is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.svc.List(r.Context(), branchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "itemID", "Item ID is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": it})
}

func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuidParam(r, "branchID", "Branch is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in inventory.CreateInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.svc.Create(r.Context(), branchID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"item": it})
}

func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "itemID", "Item ID is required")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in inventory.UpdateInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"item": it})
}

func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "itemID", "Item ID is required")
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
