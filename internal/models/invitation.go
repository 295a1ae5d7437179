package models

import (
	"time"

	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationResolved  InvitationStatus = "resolved"
	InvitationCancelled InvitationStatus = "cancelled"
)

type Invitation struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	OrganizationID uuid.UUID        `json:"organization_id" db:"organization_id"`
	Email          string           `json:"email" db:"email"`
	Role           OrgRole          `json:"role" db:"role"`
	Status         InvitationStatus `json:"status" db:"status"`
	InvitedBy      *uuid.UUID       `json:"invited_by,omitempty" db:"invited_by"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}
