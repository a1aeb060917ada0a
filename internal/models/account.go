package models

import (
	"time"

	"github.com/google/uuid"
)

// Account of the local identity provider
type Account struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Email        string
	PasswordHash string
}
