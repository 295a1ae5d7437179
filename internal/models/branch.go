package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Branch struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	Name           string          `json:"name" db:"name"`
	Code           string          `json:"code" db:"code"`
	Address        *string         `json:"address" db:"address"`
	Latitude       *float64        `json:"latitude" db:"latitude"`
	Longitude      *float64        `json:"longitude" db:"longitude"`
	Geohash        *string         `json:"geohash" db:"geohash"`
	Settings       json.RawMessage `json:"settings" db:"settings"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
