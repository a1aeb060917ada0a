package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/provider"
)

const googleIssuerURL = "https://accounts.google.com"

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

func (c GoogleConfig) enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Google sign in with PKCE, ID token is checked against Google's published keys
type googleOAuth struct {
	cfg GoogleConfig

	// OIDC discovery is done on first successful code exchange
	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func newGoogleOAuth(cfg GoogleConfig) *googleOAuth {
	if !cfg.enabled() {
		return nil
	}
	return &googleOAuth{cfg: cfg}
}

func (g *googleOAuth) config(redirectTo string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		RedirectURL:  redirectTo,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

func (g *googleOAuth) redirect(redirectTo string) models.OAuthRedirect {
	verifier := oauth2.GenerateVerifier()
	u := g.config(redirectTo).AuthCodeURL("", oauth2.S256ChallengeOption(verifier))

	return models.OAuthRedirect{
		Provider: provider.Google,
		URL:      u,
		Flow:     models.OAuthFlow{Verifier: verifier, RedirectTo: redirectTo},
	}
}

// exchange trades code for tokens and returns verified claims of the ID token
func (g *googleOAuth) exchange(ctx context.Context, code string, flow models.OAuthFlow) (googleClaims, error) {
	if strings.TrimSpace(code) == "" || flow.Verifier == "" {
		return googleClaims{}, fmt.Errorf("%w: missing code or verifier", apperrors.ErrInvalidCode)
	}

	token, err := g.config(flow.RedirectTo).Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return googleClaims{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidCode, err)
		}
		return googleClaims{}, fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return googleClaims{}, fmt.Errorf("%w: missing id_token in oauth response", apperrors.ErrInvalidCode)
	}

	verifier, err := g.idTokenVerifier(ctx)
	if err != nil {
		return googleClaims{}, err
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return googleClaims{}, fmt.Errorf("%w: failed to verify id token: %w", apperrors.ErrInvalidCode, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return googleClaims{}, fmt.Errorf("%w: failed to parse id token claims: %w", apperrors.ErrInvalidCode, err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return googleClaims{}, fmt.Errorf("%w: google account email is not verified", apperrors.ErrInvalidCode)
	}

	return claims, nil
}

func (g *googleOAuth) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.verifier != nil {
		return g.verifier, nil
	}

	// Discovery must outlive the request that triggered it
	issuer, err := oidc.NewProvider(context.WithoutCancel(ctx), googleIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: oidc discovery failed: %w", apperrors.ErrProviderUnavailable, err)
	}
	g.verifier = issuer.Verifier(&oidc.Config{ClientID: g.cfg.ClientID})

	return g.verifier, nil
}
