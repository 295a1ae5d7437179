package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
)

const itemColumns = `id, branch_id, name, sku, category, quantity, unit, status, expiry_date, received_at,
	quantity_wasted, waste_reason, unit_cost, supplier, created_by, created_at, updated_at`

type InventoryStore struct {
	base
}

func NewInventoryStore(db database.Beginner) *InventoryStore {
	return &InventoryStore{base{db: db}}
}

func scanItem(row pgx.Row) (models.InventoryItem, error) {
	var it models.InventoryItem
	err := row.Scan(&it.ID, &it.BranchID, &it.Name, &it.SKU, &it.Category, &it.Quantity, &it.Unit, &it.Status,
		&it.ExpiryDate, &it.ReceivedAt, &it.QuantityWasted, &it.WasteReason, &it.UnitCost, &it.Supplier,
		&it.CreatedBy, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// ListByBranch returns the branch's items, soonest expiry first.
func (s *InventoryStore) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]models.InventoryItem, error) {
	var out []models.InventoryItem
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			"SELECT "+itemColumns+" FROM inventory_items WHERE branch_id = $1 ORDER BY expiry_date NULLS LAST, name",
			branchID)
		if err != nil {
			return fmt.Errorf("list inventory: %w", err)
		}
		out, err = collect(rows, scanItem)
		if err != nil {
			return fmt.Errorf("scan inventory item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Branch not found")
	}
	return out, nil
}

func (s *InventoryStore) Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var it models.InventoryItem
	err := s.run(ctx, func(tx pgx.Tx) error {
		var err error
		it, err = scanItem(tx.QueryRow(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE id = $1", id))
		if err != nil {
			return fmt.Errorf("get inventory item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err, "Item not found")
	}
	return &it, nil
}

func (s *InventoryStore) Create(ctx context.Context, it *models.InventoryItem) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		created, err := scanItem(tx.QueryRow(ctx,
			`INSERT INTO inventory_items (branch_id, name, sku, category, quantity, unit, status, expiry_date,
			     unit_cost, supplier, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING `+itemColumns,
			it.BranchID, it.Name, it.SKU, it.Category, it.Quantity, it.Unit, it.Status, it.ExpiryDate,
			it.UnitCost, it.Supplier, it.CreatedBy))
		if err != nil {
			return fmt.Errorf("insert inventory item: %w", err)
		}
		*it = created
		return nil
	})
	return database.Classify(err, "Branch not found")
}

func (s *InventoryStore) Update(ctx context.Context, it *models.InventoryItem) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		updated, err := scanItem(tx.QueryRow(ctx,
			`UPDATE inventory_items
			 SET name = $2, sku = $3, category = $4, quantity = $5, unit = $6, status = $7, expiry_date = $8,
			     unit_cost = $9, supplier = $10, quantity_wasted = $11, waste_reason = $12, updated_at = now()
			 WHERE id = $1
			 RETURNING `+itemColumns,
			it.ID, it.Name, it.SKU, it.Category, it.Quantity, it.Unit, it.Status, it.ExpiryDate,
			it.UnitCost, it.Supplier, it.QuantityWasted, it.WasteReason))
		if err != nil {
			return fmt.Errorf("update inventory item: %w", err)
		}
		*it = updated
		return nil
	})
	return database.Classify(err, "Item not found")
}

func (s *InventoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM inventory_items WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete inventory item: %w", err)
		}
		return database.CheckAffected(ctx, tx, tag, "SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id = $1)", id)
	})
	return database.Classify(err, "Item not found")
}
