package models

import (
	"github.com/google/uuid"
)

// User is the authenticated caller, built from a verified access token.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Account is an identity-directory record for one email address.
type Account struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Email string    `json:"email" db:"email"`
}

type Profile struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Email    string    `json:"email" db:"email"`
	FullName string    `json:"full_name,omitempty" db:"full_name"`
}
