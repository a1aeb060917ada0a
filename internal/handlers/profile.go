package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/handlers/render"
	"github.com/nkiryanov/stockgate/internal/handlers/userctx"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
)

const msgProfileNotFound = "Profile not found"

type profileService interface {
	// Has to return apperrors.ErrProfileNotFound if user has no profile
	Profile(ctx context.Context, id uuid.UUID) (models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (models.Profile, error)
}

func handleProfileMe(profiles profileService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())

		profile, err := profiles.Profile(r.Context(), user.ID)
		renderProfile(w, l, profile, err)
	})
}

func handleProfileUpdate(profiles profileService, l logger.Logger) http.Handler {
	type request struct {
		FirstName  *string `json:"first_name" validate:"omitempty,max=100"`
		LastName   *string `json:"last_name" validate:"omitempty,max=100"`
		ProfilePic *string `json:"profile_pic" validate:"omitempty,url,max=2048"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		profile, err := profiles.UpdateProfile(r.Context(), user.ID, models.ProfileUpdate{
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			ProfilePic: data.ProfilePic,
		})
		renderProfile(w, l, profile, err)
	})
}

func renderProfile(w http.ResponseWriter, l logger.Logger, profile models.Profile, err error) {
	switch {
	case err == nil:
		render.JSON(w, profile)
	case errors.Is(err, apperrors.ErrProfileNotFound):
		render.Detail(w, msgProfileNotFound, http.StatusNotFound)
	default:
		l.Error("Profile request failed", "error", err)
		render.Detail(w, msgInternalError, http.StatusInternalServerError)
	}
}
