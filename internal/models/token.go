package models

import (
	"time"

	"github.com/google/uuid"
)

// Pair of opaque bearer strings issued by the identity provider
type TokenPair struct {
	Access  string
	Refresh string
}

// Session returned by sign-in, sign-up and code exchange
type Session struct {
	Identity Identity
	Tokens   TokenPair
}

// Started OAuth flow: URL to send the browser to plus the state needed to finish it
type OAuthRedirect struct {
	Provider string    `json:"provider"`
	URL      string    `json:"url"`
	Flow     OAuthFlow `json:"-"`
}

type OAuthFlow struct {
	Verifier   string `json:"verifier"`
	RedirectTo string `json:"redirect_to"`
}

// Refresh token stored by the local identity provider
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
}
