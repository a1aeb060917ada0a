package models

import (
	"github.com/google/uuid"
)

// Authenticated principal as reported by the identity provider
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role,omitempty"`
}

type Credentials struct {
	Email    string
	Password string
}

// Extra fields collected on registration and stored in the profile
type ProfileFields struct {
	FirstName string
	LastName  string
}
