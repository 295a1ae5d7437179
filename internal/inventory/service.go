// Package inventory records perishable stock per branch. Who may write which
// branch is decided by the row policies alone; this package validates input
// and turns policy rejections into readable messages.
package inventory

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/metrics"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
	"github.com/nikhilbhutani/toolate/pkg/textnorm"
)

// LowStockThreshold is the largest quantity still reported as low stock.
const LowStockThreshold = 10

type Store interface {
	ListByBranch(ctx context.Context, branchID uuid.UUID) ([]models.InventoryItem, error)
	Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	Create(ctx context.Context, it *models.InventoryItem) error
	Update(ctx context.Context, it *models.InventoryItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// DeriveStatus maps a quantity to its stock status.
func DeriveStatus(quantity float64) models.InventoryStatus {
	switch {
	case quantity == 0:
		return models.StatusOutOfStock
	case quantity <= LowStockThreshold:
		return models.StatusLowStock
	default:
		return models.StatusInStock
	}
}

func validStatus(s models.InventoryStatus) bool {
	switch s {
	case models.StatusInStock, models.StatusLowStock, models.StatusOutOfStock, models.StatusReserved, models.StatusSold:
		return true
	}
	return false
}

func validQuantity(q *float64) bool {
	return q != nil && !math.IsNaN(*q) && !math.IsInf(*q, 0) && *q >= 0
}

type CreateInput struct {
	Name       string     `json:"name"`
	SKU        string     `json:"sku"`
	Category   string     `json:"category"`
	Quantity   *float64   `json:"quantity"`
	Unit       string     `json:"unit"`
	ExpiryDate *time.Time `json:"expiry_date"`
	UnitCost   *float64   `json:"unit_cost"`
	Supplier   string     `json:"supplier"`
}

// UpdateInput leaves Name, Unit and Quantity unchanged when they are empty.
// Status is only honoured when no quantity is given; otherwise it is derived.
type UpdateInput struct {
	Name           string                 `json:"name"`
	SKU            string                 `json:"sku"`
	Category       string                 `json:"category"`
	Quantity       *float64               `json:"quantity"`
	Unit           string                 `json:"unit"`
	Status         models.InventoryStatus `json:"status"`
	ExpiryDate     *time.Time             `json:"expiry_date"`
	QuantityWasted float64                `json:"quantity_wasted"`
	WasteReason    string                 `json:"waste_reason"`
	UnitCost       *float64               `json:"unit_cost"`
	Supplier       string                 `json:"supplier"`
}

func requireUser(ctx context.Context) (*models.User, error) {
	u := tenant.UserFromContext(ctx)
	if u == nil {
		return nil, apperr.New(apperr.Unauthenticated, "You must be logged in")
	}
	return u, nil
}

// rejected rewrites a row-policy rejection with msg.
func rejected(err error, msg string) error {
	if apperr.Is(err, apperr.PermissionDenied) {
		return apperr.WithMessage(err, msg)
	}
	return err
}

func (s *Service) List(ctx context.Context, branchID uuid.UUID) ([]models.InventoryItem, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	items, err := s.store.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, branchID uuid.UUID, in CreateInput) (it *models.InventoryItem, err error) {
	defer func() { metrics.ObserveOperation("create_inventory_item", outcome(err)) }()

	u, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if branchID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "Branch is required")
	}
	name := textnorm.Plain(in.Name)
	if len([]rune(name)) < 2 {
		return nil, apperr.New(apperr.Validation, "Item name must be at least 2 characters")
	}
	if !validQuantity(in.Quantity) {
		return nil, apperr.New(apperr.Validation, "Valid quantity is required")
	}
	unit := textnorm.Plain(in.Unit)
	if unit == "" {
		return nil, apperr.New(apperr.Validation, "Unit is required")
	}

	it = &models.InventoryItem{
		BranchID:   branchID,
		Name:       name,
		SKU:        textnorm.Optional(in.SKU),
		Category:   textnorm.Optional(in.Category),
		Quantity:   *in.Quantity,
		Unit:       unit,
		Status:     DeriveStatus(*in.Quantity),
		ExpiryDate: in.ExpiryDate,
		UnitCost:   in.UnitCost,
		Supplier:   textnorm.Optional(in.Supplier),
		CreatedBy:  &u.ID,
	}
	if err := s.store.Create(ctx, it); err != nil {
		return nil, rejected(err, "You do not have permission to add inventory to this branch")
	}
	return it, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (it *models.InventoryItem, err error) {
	defer func() { metrics.ObserveOperation("update_inventory_item", outcome(err)) }()

	if _, err := requireUser(ctx); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "Item ID is required")
	}
	if in.Quantity != nil && !validQuantity(in.Quantity) {
		return nil, apperr.New(apperr.Validation, "Valid quantity is required")
	}
	if in.Status != "" && !validStatus(in.Status) {
		return nil, apperr.New(apperr.Validation, "Invalid status")
	}

	it, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := textnorm.Plain(in.Name); name != "" {
		if len([]rune(name)) < 2 {
			return nil, apperr.New(apperr.Validation, "Item name must be at least 2 characters")
		}
		it.Name = name
	}
	if unit := textnorm.Plain(in.Unit); unit != "" {
		it.Unit = unit
	}
	it.SKU = textnorm.Optional(in.SKU)
	it.Category = textnorm.Optional(in.Category)
	it.ExpiryDate = in.ExpiryDate
	it.UnitCost = in.UnitCost
	it.Supplier = textnorm.Optional(in.Supplier)
	it.QuantityWasted = in.QuantityWasted
	it.WasteReason = textnorm.Optional(in.WasteReason)

	switch {
	case in.Quantity != nil:
		it.Quantity = *in.Quantity
		it.Status = DeriveStatus(it.Quantity)
	case in.Status != "":
		it.Status = in.Status
	}

	const msg = "You do not have permission to update this item"
	if err := s.store.Update(ctx, it); err != nil {
		// The item was readable a moment ago, so a missing row here means the
		// update policy filtered it out.
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.Wrap(apperr.PermissionDenied, msg, err)
		}
		return nil, rejected(err, msg)
	}
	return it, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { metrics.ObserveOperation("delete_inventory_item", outcome(err)) }()

	if _, err := requireUser(ctx); err != nil {
		return err
	}
	if id == uuid.Nil {
		return apperr.New(apperr.Validation, "Item ID is required")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return rejected(err, "You do not have permission to delete this item")
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}
