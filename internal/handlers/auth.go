package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/handlers/render"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/session"
)

const (
	msgInvalidCredentials  = "Invalid credentials"
	msgUserAlreadyExists   = "User already exists"
	msgConfirmationSent    = "Confirmation email sent"
	msgGoogleSignInFailed  = "Failed to sign in with Google"
	msgInvalidGoogleCode   = "Invalid Google code"
	msgProviderUnavailable = "Authentication service unavailable"
	msgLoggedOut           = "Logged out successfully"
	msgInternalError       = "Internal server error"
)

type authService interface {
	// Has to return apperrors.ErrInvalidCredentials if email or password is wrong
	Login(ctx context.Context, creds models.Credentials) (models.Session, error)

	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	// or apperrors.ErrConfirmationRequired if provider asks to confirm email first
	Register(ctx context.Context, creds models.Credentials, fields models.ProfileFields) (models.Session, error)

	GoogleRedirect(ctx context.Context, redirectTo string) (models.OAuthRedirect, error)

	// Has to return apperrors.ErrInvalidCode if code was rejected
	ExchangeGoogleCode(ctx context.Context, code string, flow models.OAuthFlow) (models.Session, error)
}

type AuthHandler struct {
	authService authService
	cookies     *session.Cookies
	logger      logger.Logger
}

func NewAuth(auth authService, cookies *session.Cookies, l logger.Logger) *AuthHandler {
	return &AuthHandler{authService: auth, cookies: cookies, logger: l}
}

// Handler expects to be mounted with "/auth" prefix stripped
func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/local", h.login)
	mux.HandleFunc("POST /register/local", h.register)
	mux.HandleFunc("POST /sign-in/google", h.googleSignIn)
	mux.HandleFunc("POST /sign-in/google/validate-code", h.googleValidateCode)
	mux.HandleFunc("POST /sign-out", h.signOut)

	return mux
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	s, err := h.authService.Login(r.Context(), models.Credentials{Email: data.Email, Password: data.Password})
	switch {
	case err == nil:
		h.startSession(w, r, s)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.Detail(w, msgInvalidCredentials, http.StatusBadRequest)
	default:
		h.failure(w, "login", err)
	}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=6,max=72"`
		FirstName string `json:"first_name" validate:"required,max=100"`
		LastName  string `json:"last_name" validate:"required,max=100"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	s, err := h.authService.Register(r.Context(),
		models.Credentials{Email: data.Email, Password: data.Password},
		models.ProfileFields{FirstName: data.FirstName, LastName: data.LastName},
	)
	switch {
	case err == nil:
		h.startSession(w, r, s)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		render.Detail(w, msgUserAlreadyExists, http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrConfirmationRequired):
		render.Detail(w, msgConfirmationSent, http.StatusAccepted)
	default:
		h.failure(w, "register", err)
	}
}

func (h *AuthHandler) googleSignIn(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.authService.GoogleRedirect(r.Context(), r.URL.Query().Get("redirect_to"))
	if errors.Is(err, apperrors.ErrProviderUnavailable) {
		h.failure(w, "google sign in", err)
		return
	}
	if err != nil {
		h.logger.Error("Failed to start Google sign in", "error", err)
		render.Detail(w, msgGoogleSignInFailed, http.StatusInternalServerError)
		return
	}

	flow, err := h.cookies.EncodeFlow(r, redirect.Flow)
	if err != nil {
		h.logger.Error("Failed to encode oauth flow", "error", err)
		render.Detail(w, msgGoogleSignInFailed, http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, flow)
	render.JSON(w, redirect)
}

// Flow cookie may be missing (expired or other browser), then provider rejects the code
func (h *AuthHandler) googleValidateCode(w http.ResponseWriter, r *http.Request) {
	flow, _ := h.cookies.DecodeFlow(r)
	http.SetCookie(w, h.cookies.ClearFlow(r))

	s, err := h.authService.ExchangeGoogleCode(r.Context(), r.URL.Query().Get("code"), flow)
	switch {
	case err == nil:
		h.startSession(w, r, s)
	case errors.Is(err, apperrors.ErrInvalidCode), errors.Is(err, apperrors.ErrOAuthNotConfigured):
		render.Detail(w, msgInvalidGoogleCode, http.StatusBadRequest)
	default:
		h.failure(w, "google validate code", err)
	}
}

func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	session.Set(w, h.cookies.Clear(r))
	render.Detail(w, msgLoggedOut, http.StatusOK)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, s models.Session) {
	session.Set(w, h.cookies.Encode(r, s.Tokens))
	render.JSON(w, s.Identity)
}

// failure answers errors the route has no own message for
func (h *AuthHandler) failure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, apperrors.ErrProviderUnavailable) {
		h.logger.Warn("Identity provider unavailable", "op", op, "error", err)
		render.Detail(w, msgProviderUnavailable, http.StatusServiceUnavailable)
		return
	}

	h.logger.Error("Auth request failed", "op", op, "error", err)
	render.Detail(w, msgInternalError, http.StatusInternalServerError)
}
