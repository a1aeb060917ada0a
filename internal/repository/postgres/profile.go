package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/models"
)

type ProfileRepo struct {
	DB DBTX
}

const profileColumns = `id, email, first_name, last_name, profile_pic, created_at, updated_at`

const createProfile = `-- name: CreateProfile
INSERT INTO user_profiles (id, email, first_name, last_name, profile_pic)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + profileColumns

func (r *ProfileRepo) Create(ctx context.Context, p models.Profile) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, createProfile, p.ID, p.Email, p.FirstName, p.LastName, p.ProfilePic)
	profile, err := pgx.CollectOneRow(rows, rowToProfile)

	switch {
	case err == nil:
		return profile, nil
	case isUniqueViolation(err):
		return profile, fmt.Errorf("repo error: %w", apperrors.ErrUserAlreadyExists)
	default:
		return profile, fmt.Errorf("db error: %w", err)
	}
}

const ensureProfile = `-- name: EnsureProfile
WITH inserted AS (
    INSERT INTO user_profiles (id, email, first_name, last_name, profile_pic)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT DO NOTHING
    RETURNING ` + profileColumns + `
)
SELECT ` + profileColumns + ` FROM inserted
UNION ALL
SELECT ` + profileColumns + ` FROM user_profiles WHERE id = $1
LIMIT 1
`

// Ensure inserts profile unless a profile with the same id exists
// Conflict on email with a different id is reported as apperrors.ErrProfileNotFound
func (r *ProfileRepo) Ensure(ctx context.Context, p models.Profile) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, ensureProfile, p.ID, p.Email, p.FirstName, p.LastName, p.ProfilePic)
	return collectProfile(rows)
}

const getProfileByID = `-- name: GetProfileByID
SELECT ` + profileColumns + `
FROM user_profiles
WHERE id = $1
`

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, getProfileByID, id)
	return collectProfile(rows)
}

const updateProfile = `-- name: UpdateProfile
UPDATE user_profiles
SET first_name  = COALESCE($2, first_name),
    last_name   = COALESCE($3, last_name),
    profile_pic = COALESCE($4, profile_pic),
    updated_at  = now()
WHERE id = $1
RETURNING ` + profileColumns

func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, u models.ProfileUpdate) (models.Profile, error) {
	rows, _ := r.DB.Query(ctx, updateProfile, id, u.FirstName, u.LastName, u.ProfilePic)
	return collectProfile(rows)
}

func collectProfile(rows pgx.Rows) (models.Profile, error) {
	profile, err := pgx.CollectOneRow(rows, rowToProfile)

	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, pgx.ErrNoRows):
		return profile, fmt.Errorf("repo error: %w", apperrors.ErrProfileNotFound)
	default:
		return profile, fmt.Errorf("db error: %w", err)
	}
}

func rowToProfile(row pgx.CollectableRow) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.ProfilePic, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
