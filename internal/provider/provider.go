// Package provider declares the identity provider contract shared by the gotrue client and the local provider.
package provider

import (
	"context"

	"github.com/nkiryanov/stockgate/internal/models"
)

// Names accepted by AUTH_PROVIDER
const (
	KindGoTrue = "gotrue"
	KindLocal  = "local"
)

// OAuth providers
const (
	Google = "google"
)

// Client of an external identity provider
// Every method may return apperrors.ErrProviderUnavailable when the provider cannot answer
type Client interface {
	// Has to return apperrors.ErrInvalidCredentials if email or password are wrong
	SignIn(ctx context.Context, creds models.Credentials) (models.Session, error)

	// Has to return apperrors.ErrUserAlreadyExists if provider refuses to create user
	// Has to return apperrors.ErrConfirmationRequired if user created but session not issued yet
	SignUp(ctx context.Context, creds models.Credentials, fields models.ProfileFields) (models.Session, error)

	// Has to return apperrors.ErrOAuthNotConfigured if provider can't start the flow
	OAuthRedirect(ctx context.Context, provider string, redirectTo string) (models.OAuthRedirect, error)

	// Has to return apperrors.ErrInvalidCode if code is rejected
	ExchangeCode(ctx context.Context, code string, flow models.OAuthFlow) (models.Session, error)

	// Has to return apperrors.ErrInvalidToken if refresh token is rejected
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)

	// Has to return apperrors.ErrInvalidToken if access token is rejected
	Introspect(ctx context.Context, accessToken string) (models.Identity, error)
}
