package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/stockgate/internal/models"
)

// User profile repository interface
type ProfileRepo interface {
	// Create profile
	// If profile with the same id or email exists has to return apperrors.ErrUserAlreadyExists
	Create(ctx context.Context, profile models.Profile) (models.Profile, error)

	// Create profile if it does not exist yet and return the stored one
	Ensure(ctx context.Context, profile models.Profile) (models.Profile, error)

	// If profile not found must return apperrors.ErrProfileNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (models.Profile, error)
}

// Local identity provider account repository
type AccountRepo interface {
	// If account with email exists already has to return apperrors.ErrUserAlreadyExists
	Create(ctx context.Context, email string, passwordHash string) (models.Account, error)

	// If account not found must return apperrors.ErrUserNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it expired or used
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, token string) (models.RefreshToken, error)

	// Return the token and mark it used in one step
	// If token used before must return apperrors.ErrRefreshTokenIsUsed
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	GetAndMarkUsed(ctx context.Context, token string) (models.RefreshToken, error)
}

type Storage interface {
	Profile() ProfileRepo
	Account() AccountRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
