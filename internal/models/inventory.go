package models

import (
	"time"

	"github.com/google/uuid"
)

type InventoryStatus string

const (
	StatusInStock    InventoryStatus = "in_stock"
	StatusLowStock   InventoryStatus = "low_stock"
	StatusOutOfStock InventoryStatus = "out_of_stock"
	StatusReserved   InventoryStatus = "reserved"
	StatusSold       InventoryStatus = "sold"
)

type InventoryItem struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	BranchID       uuid.UUID       `json:"branch_id" db:"branch_id"`
	Name           string          `json:"name" db:"name"`
	SKU            *string         `json:"sku" db:"sku"`
	Category       *string         `json:"category" db:"category"`
	Quantity       float64         `json:"quantity" db:"quantity"`
	Unit           string          `json:"unit" db:"unit"`
	Status         InventoryStatus `json:"status" db:"status"`
	ExpiryDate     *time.Time      `json:"expiry_date" db:"expiry_date"`
	ReceivedAt     time.Time       `json:"received_at" db:"received_at"`
	QuantityWasted float64         `json:"quantity_wasted" db:"quantity_wasted"`
	WasteReason    *string         `json:"waste_reason" db:"waste_reason"`
	UnitCost       *float64        `json:"unit_cost" db:"unit_cost"`
	Supplier       *string         `json:"supplier" db:"supplier"`
	CreatedBy      *uuid.UUID      `json:"created_by" db:"created_by"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
