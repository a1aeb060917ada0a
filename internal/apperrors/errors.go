package apperrors

import (
	"errors"
)

var (
	// Request carries no credential at all (no header, no refresh cookie)
	ErrMissingCredential = errors.New("missing credential")
	// Authorization header present but not 'Bearer <token>'
	ErrMalformedCredential = errors.New("malformed credential")
	// Provider rejected the token
	ErrInvalidToken = errors.New("invalid token")
	// Provider could not be reached, timed out or answered garbage
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// Refresh failed or the refreshed access token did not validate
	ErrRefreshExhausted = errors.New("refresh exhausted")

	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrConfirmationRequired = errors.New("email confirmation required")
	ErrInvalidCode          = errors.New("invalid oauth code")
	ErrOAuthNotConfigured   = errors.New("oauth provider is not configured")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrProfileNotFound = errors.New("profile not found")

	ErrQuoteNotFound    = errors.New("quote not found")
	ErrQuoteUnavailable = errors.New("quote service unavailable")
)
