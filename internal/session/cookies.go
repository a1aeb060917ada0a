package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/stockgate/internal/models"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	FlowCookieName    = "oauth_flow"

	flowCookiePath   = "/auth"
	flowCookieMaxAge = 10 * time.Minute
)

// When cookies get the Secure attribute
type SecurePolicy string

const (
	SecureAuto   SecurePolicy = "auto"
	SecureAlways SecurePolicy = "always"
	SecureNever  SecurePolicy = "never"
)

func ParseSecurePolicy(s string) (SecurePolicy, error) {
	switch p := SecurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SecureAuto, SecureAlways, SecureNever:
		return p, nil
	case "":
		return SecureAuto, nil
	default:
		return "", fmt.Errorf("unknown cookie secure policy %q, expected auto, always or never", s)
	}
}

// Cookies encodes session tokens into response cookies and reads them back from requests
type Cookies struct {
	secure SecurePolicy
}

func NewCookies(secure SecurePolicy) *Cookies {
	if secure == "" {
		secure = SecureAuto
	}
	return &Cookies{secure: secure}
}

// Encode returns access and refresh cookies for the pair
func (c *Cookies) Encode(r *http.Request, pair models.TokenPair) []*http.Cookie {
	secure := c.isSecure(r)
	return []*http.Cookie{
		c.cookie(AccessCookieName, pair.Access, false, secure),
		c.cookie(RefreshCookieName, pair.Refresh, true, secure),
	}
}

// Clear returns expired cookies for both tokens, never one alone
func (c *Cookies) Clear(r *http.Request) []*http.Cookie {
	cookies := c.Encode(r, models.TokenPair{})
	for _, cookie := range cookies {
		cookie.MaxAge = -1
	}
	return cookies
}

// Decode reads token pair from request, missing cookies give empty strings
func (c *Cookies) Decode(r *http.Request) models.TokenPair {
	var pair models.TokenPair
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		pair.Access = cookie.Value
	}
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		pair.Refresh = cookie.Value
	}
	return pair
}

// Set writes cookies to the response headers
func Set(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		http.SetCookie(w, cookie)
	}
}

// EncodeFlow stores PKCE state between OAuth redirect and code validation
func (c *Cookies) EncodeFlow(r *http.Request, flow models.OAuthFlow) (*http.Cookie, error) {
	raw, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("failed to encode oauth flow: %w", err)
	}

	return &http.Cookie{
		Name:     FlowCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     flowCookiePath,
		MaxAge:   int(flowCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// DecodeFlow returns false if the flow cookie is missing or damaged
func (c *Cookies) DecodeFlow(r *http.Request) (models.OAuthFlow, bool) {
	cookie, err := r.Cookie(FlowCookieName)
	if err != nil {
		return models.OAuthFlow{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return models.OAuthFlow{}, false
	}

	var flow models.OAuthFlow
	if err := json.Unmarshal(raw, &flow); err != nil || flow.Verifier == "" {
		return models.OAuthFlow{}, false
	}
	return flow, true
}

func (c *Cookies) ClearFlow(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     FlowCookieName,
		Path:     flowCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Cookies) cookie(name string, value string, httpOnly bool, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Cookies) isSecure(r *http.Request) bool {
	switch c.secure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	default:
		if r == nil {
			return false
		}
		return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	}
}
