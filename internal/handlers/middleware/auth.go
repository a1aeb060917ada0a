package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/handlers/render"
	"github.com/nkiryanov/stockgate/internal/handlers/userctx"
	applogger "github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/session"
)

const (
	MsgMissingHeader       = "Not authenticated: missing authorization header"
	MsgInvalidHeader       = "Not authenticated: invalid authorization header"
	MsgInvalidToken        = "Not authenticated: invalid token"
	MsgMissingCredentials  = "Not authenticated: missing authorization header or refresh token cookie"
	MsgRefreshFailed       = "Invalid refresh token or failed to issue new tokens"
	MsgRevalidationFailed  = "Failed to validate session after token refresh"
	bearerScheme           = "Bearer "
	websocketTokenQueryKey = "token"
)

// Outcome labels for metrics
const (
	OutcomePublic        = "public"
	OutcomeAuthenticated = "authenticated"
	OutcomeRefreshed     = "refreshed"
	OutcomeRejected      = "rejected"
)

type validator interface {
	Validate(ctx context.Context, accessToken string) (models.Identity, error)
}

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// authError is rejection reason with the message sent to the client
type authError struct {
	reason  error
	message string

	// Clear session cookies on the response
	clear bool
}

func (e *authError) Error() string {
	return fmt.Sprintf("%s: %s", e.reason, e.message)
}

func (e *authError) Unwrap() error {
	return e.reason
}

// outcome of authentication: identity with optional refreshed pair
type outcome struct {
	identity  models.Identity
	refreshed *models.TokenPair
}

type Auth struct {
	classifier Classifier
	validator  validator
	refresher  refresher
	cookies    *session.Cookies
	logger     applogger.Logger
	metrics    *metrics.Metrics
}

func NewAuth(c Classifier, v validator, r refresher, cookies *session.Cookies, l applogger.Logger, m *metrics.Metrics) *Auth {
	return &Auth{
		classifier: c,
		validator:  v,
		refresher:  r,
		cookies:    cookies,
		logger:     l,
		metrics:    m,
	}
}

// Auth lets public requests through and runs protected ones only with validated identity in context
func (a *Auth) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.classifier.Classify(r.URL.Path, r.Method) == Public {
			a.metrics.AuthOutcome(OutcomePublic)
			next.ServeHTTP(w, r)
			return
		}

		out, err := a.authenticate(r)
		if err != nil {
			a.reject(w, r, err)
			return
		}

		ctx := userctx.New(r.Context(), out.identity)
		if out.refreshed == nil {
			a.metrics.AuthOutcome(OutcomeAuthenticated)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		a.metrics.AuthOutcome(OutcomeRefreshed)
		cw := newCookieWriter(w, a.cookies.Encode(r, *out.refreshed))
		next.ServeHTTP(cw, r.WithContext(ctx))

		// Handler wrote nothing at all
		cw.commit()
	})
}

func (a *Auth) authenticate(r *http.Request) (outcome, error) {
	ctx := r.Context()

	accessToken, err := bearerToken(r)
	if err != nil {
		return outcome{}, err
	}

	identity, err := a.validator.Validate(ctx, accessToken)
	if err == nil {
		return outcome{identity: identity}, nil
	}

	refreshToken := a.cookies.Decode(r).Refresh
	if refreshToken == "" {
		return outcome{}, &authError{reason: apperrors.ErrMissingCredential, message: MsgMissingCredentials}
	}

	pair, err := a.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		a.logger.Debug("Session refresh failed", "error", err)
		return outcome{}, &authError{
			reason:  fmt.Errorf("%w: %w", apperrors.ErrRefreshExhausted, err),
			message: MsgRefreshFailed,
			clear:   true,
		}
	}

	identity, err = a.validator.Validate(ctx, pair.Access)
	if err != nil {
		a.logger.Error("Freshly refreshed access token did not validate", "error", err)
		return outcome{}, &authError{
			reason:  fmt.Errorf("%w: %w", apperrors.ErrRefreshExhausted, err),
			message: MsgRevalidationFailed,
			clear:   true,
		}
	}

	return outcome{identity: identity, refreshed: &pair}, nil
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, err error) {
	a.metrics.AuthOutcome(OutcomeRejected)

	var authErr *authError
	if !errors.As(err, &authErr) {
		authErr = &authError{reason: err, message: MsgInvalidToken}
	}

	a.logger.Info("Request not authenticated", "path", r.URL.Path, "reason", authErr.reason)

	if authErr.clear {
		session.Set(w, a.cookies.Clear(r))
	}
	render.Detail(w, authErr.message, http.StatusUnauthorized)
}

// bearerToken reads token from Authorization header
// Browsers can't set headers on websocket handshake, so upgrade requests may pass it in query instead
func bearerToken(r *http.Request) (string, error) {
	header, ok := r.Header["Authorization"]
	if !ok || len(header) == 0 {
		if isWebsocketUpgrade(r) {
			if token := r.URL.Query().Get(websocketTokenQueryKey); token != "" {
				return token, nil
			}
		}
		return "", &authError{reason: apperrors.ErrMissingCredential, message: MsgMissingHeader}
	}

	value := header[0]
	if !strings.HasPrefix(value, bearerScheme) {
		return "", &authError{reason: apperrors.ErrMalformedCredential, message: MsgInvalidHeader}
	}

	token := strings.TrimPrefix(value, bearerScheme)
	if token == "" {
		return "", &authError{reason: apperrors.ErrMalformedCredential, message: MsgInvalidToken}
	}

	return token, nil
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
