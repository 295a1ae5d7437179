package models

import (
	"encoding/json"
	"net/netip"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID *uuid.UUID      `json:"organization_id,omitempty" db:"organization_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action         string          `json:"action" db:"action"`
	ResourceType   string          `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID     *uuid.UUID      `json:"resource_id,omitempty" db:"resource_id"`
	Details        json.RawMessage `json:"details" db:"details"`
	IPAddress      *netip.Addr     `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
