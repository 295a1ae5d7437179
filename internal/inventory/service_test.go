package inventory

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/apperr"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

// policyStore stands in for the row policies: writes to branches outside
// writable are rejected, updates to readable-only items match no rows.
type policyStore struct {
	items    map[uuid.UUID]models.InventoryItem
	writable map[uuid.UUID]bool
}

func newPolicyStore(writable ...uuid.UUID) *policyStore {
	s := &policyStore{items: map[uuid.UUID]models.InventoryItem{}, writable: map[uuid.UUID]bool{}}
	for _, id := range writable {
		s.writable[id] = true
	}
	return s
}

func (s *policyStore) ListByBranch(_ context.Context, branchID uuid.UUID) ([]models.InventoryItem, error) {
	var out []models.InventoryItem
	for _, it := range s.items {
		if it.BranchID == branchID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *policyStore) Get(_ context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Item not found")
	}
	return &it, nil
}

func (s *policyStore) Create(_ context.Context, it *models.InventoryItem) error {
	if !s.writable[it.BranchID] {
		return apperr.New(apperr.PermissionDenied, "You do not have permission to perform this action")
	}
	it.ID = uuid.New()
	s.items[it.ID] = *it
	return nil
}

func (s *policyStore) Update(_ context.Context, it *models.InventoryItem) error {
	if !s.writable[it.BranchID] {
		return apperr.New(apperr.NotFound, "Item not found")
	}
	s.items[it.ID] = *it
	return nil
}

func (s *policyStore) Delete(_ context.Context, id uuid.UUID) error {
	it, ok := s.items[id]
	if !ok {
		return apperr.New(apperr.NotFound, "Item not found")
	}
	if !s.writable[it.BranchID] {
		return apperr.New(apperr.PermissionDenied, "You do not have permission to perform this action")
	}
	delete(s.items, id)
	return nil
}

func signedIn() context.Context {
	return tenant.WithUser(context.Background(), &models.User{ID: uuid.New(), Email: "cook@acme.test"})
}

func qty(f float64) *float64 { return &f }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		q    float64
		want models.InventoryStatus
	}{
		{0, models.StatusOutOfStock},
		{0.5, models.StatusLowStock},
		{10, models.StatusLowStock},
		{10.01, models.StatusInStock},
		{250, models.StatusInStock},
	}
	for _, tt := range tests {
		if got := DeriveStatus(tt.q); got != tt.want {
			t.Errorf("DeriveStatus(%v) = %s, want %s", tt.q, got, tt.want)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	branch := uuid.New()
	svc := NewService(newPolicyStore(branch))
	ctx := signedIn()

	tests := []struct {
		name     string
		branchID uuid.UUID
		in       CreateInput
		msg      string
	}{
		{"no branch", uuid.Nil, CreateInput{Name: "Milk", Quantity: qty(1), Unit: "l"}, "Branch is required"},
		{"short name", branch, CreateInput{Name: "M", Quantity: qty(1), Unit: "l"}, "Item name must be at least 2 characters"},
		{"markup only name", branch, CreateInput{Name: "<b></b>", Quantity: qty(1), Unit: "l"}, "Item name must be at least 2 characters"},
		{"missing quantity", branch, CreateInput{Name: "Milk", Unit: "l"}, "Valid quantity is required"},
		{"negative quantity", branch, CreateInput{Name: "Milk", Quantity: qty(-1), Unit: "l"}, "Valid quantity is required"},
		{"nan quantity", branch, CreateInput{Name: "Milk", Quantity: qty(math.NaN()), Unit: "l"}, "Valid quantity is required"},
		{"no unit", branch, CreateInput{Name: "Milk", Quantity: qty(1), Unit: " "}, "Unit is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.branchID, tt.in)
			if apperr.KindOf(err) != apperr.Validation || apperr.Message(err) != tt.msg {
				t.Fatalf("expected %q, got %v", tt.msg, err)
			}
		})
	}
}

func TestCreateDerivesStatusAndTranslatesDenial(t *testing.T) {
	mine, theirs := uuid.New(), uuid.New()
	svc := NewService(newPolicyStore(mine))
	ctx := signedIn()

	it, err := svc.Create(ctx, mine, CreateInput{Name: "Milk", Quantity: qty(4), Unit: "l", SKU: " "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.Status != models.StatusLowStock || it.SKU != nil || it.CreatedBy == nil {
		t.Errorf("unexpected item %+v", it)
	}

	_, err = svc.Create(ctx, theirs, CreateInput{Name: "Milk", Quantity: qty(4), Unit: "l"})
	if apperr.KindOf(err) != apperr.PermissionDenied ||
		apperr.Message(err) != "You do not have permission to add inventory to this branch" {
		t.Fatalf("expected translated denial, got %v", err)
	}

	_, err = svc.Create(context.Background(), mine, CreateInput{Name: "Milk", Quantity: qty(4), Unit: "l"})
	if apperr.KindOf(err) != apperr.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	mine, theirs := uuid.New(), uuid.New()
	store := newPolicyStore(mine)
	svc := NewService(store)
	ctx := signedIn()

	it, err := svc.Create(ctx, mine, CreateInput{Name: "Flour", Quantity: qty(50), Unit: "kg"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(ctx, it.ID, UpdateInput{Quantity: qty(0), Status: models.StatusReserved})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.StatusOutOfStock || updated.Name != "Flour" || updated.Unit != "kg" {
		t.Errorf("unexpected update %+v", updated)
	}

	updated, err = svc.Update(ctx, it.ID, UpdateInput{Status: models.StatusReserved, QuantityWasted: 2, WasteReason: "spoiled"})
	if err != nil {
		t.Fatalf("status update: %v", err)
	}
	if updated.Status != models.StatusReserved || updated.Quantity != 0 || *updated.WasteReason != "spoiled" {
		t.Errorf("unexpected status update %+v", updated)
	}

	_, err = svc.Update(ctx, it.ID, UpdateInput{Status: "melted"})
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected invalid status, got %v", err)
	}

	_, err = svc.Update(ctx, uuid.Nil, UpdateInput{})
	if apperr.Message(err) != "Item ID is required" {
		t.Errorf("expected missing id, got %v", err)
	}

	readOnly := models.InventoryItem{ID: uuid.New(), BranchID: theirs, Name: "Eggs", Unit: "pcs"}
	store.items[readOnly.ID] = readOnly
	_, err = svc.Update(ctx, readOnly.ID, UpdateInput{Quantity: qty(3)})
	if apperr.KindOf(err) != apperr.PermissionDenied || apperr.Message(err) != "You do not have permission to update this item" {
		t.Errorf("expected update denial, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	mine, theirs := uuid.New(), uuid.New()
	store := newPolicyStore(mine)
	svc := NewService(store)
	ctx := signedIn()

	foreign := models.InventoryItem{ID: uuid.New(), BranchID: theirs, Name: "Eggs", Unit: "pcs"}
	store.items[foreign.ID] = foreign
	err := svc.Delete(ctx, foreign.ID)
	if apperr.Message(err) != "You do not have permission to delete this item" {
		t.Fatalf("expected delete denial, got %v", err)
	}

	err = svc.Delete(ctx, uuid.New())
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	it, err := svc.Create(ctx, mine, CreateInput{Name: "Butter", Quantity: qty(12), Unit: "kg"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(ctx, it.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ := svc.List(ctx, mine)
	if len(items) != 0 {
		t.Fatalf("expected empty branch, got %d items", len(items))
	}
}
