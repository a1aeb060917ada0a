// Package gotrue is a client of GoTrue compatible auth servers (Supabase Auth and forks).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/provider"
)

const (
	defaultTimeout = 10 * time.Second
	apiPrefix      = "/auth/v1"

	// Max error body size to keep in logs
	maxErrorBody = 1 << 10
)

type Config struct {
	// Project URL, e.g. https://project.supabase.co
	BaseURL string

	// Public (anon) API key
	APIKey string

	// Timeout of every request to the server
	// If not set than default is used
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string

	client *http.Client
	logger logger.Logger
}

var _ provider.Client = (*Client)(nil)

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider url %q is not valid absolute url", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("provider api key must not be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/") + apiPrefix,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  l,
	}, nil
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u userResponse) identity() (models.Identity, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: malformed user id %q", apperrors.ErrProviderUnavailable, u.ID)
	}
	return models.Identity{ID: id, Email: u.Email, Role: u.Role}, nil
}

type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

func (s sessionResponse) tokens() (models.TokenPair, error) {
	if s.AccessToken == "" || s.RefreshToken == "" {
		return models.TokenPair{}, fmt.Errorf("%w: session without tokens", apperrors.ErrProviderUnavailable)
	}
	return models.TokenPair{Access: s.AccessToken, Refresh: s.RefreshToken}, nil
}

func (s sessionResponse) session() (models.Session, error) {
	tokens, err := s.tokens()
	if err != nil {
		return models.Session{}, err
	}
	if s.User == nil {
		return models.Session{}, fmt.Errorf("%w: session without user", apperrors.ErrProviderUnavailable)
	}
	identity, err := s.User.identity()
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Identity: identity, Tokens: tokens}, nil
}

func (c *Client) SignIn(ctx context.Context, creds models.Credentials) (models.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, request{
		op:       "sign_in",
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"password"}},
		body:     map[string]string{"email": creds.Email, "password": creds.Password},
		rejected: apperrors.ErrInvalidCredentials,
	}, &resp)
	if err != nil {
		return models.Session{}, err
	}
	return resp.session()
}

func (c *Client) SignUp(ctx context.Context, creds models.Credentials, fields models.ProfileFields) (models.Session, error) {
	// Server answers with session when autoconfirm is on, and with bare user otherwise
	var resp struct {
		sessionResponse
		userResponse
	}
	err := c.do(ctx, request{
		op:     "sign_up",
		method: http.MethodPost,
		path:   "/signup",
		body: map[string]any{
			"email":    creds.Email,
			"password": creds.Password,
			"data": map[string]string{
				"first_name": fields.FirstName,
				"last_name":  fields.LastName,
			},
		},
		rejected: apperrors.ErrUserAlreadyExists,
	}, &resp)
	if err != nil {
		return models.Session{}, err
	}

	if resp.AccessToken == "" {
		c.logger.Info("User signed up, confirmation required", "user_id", resp.ID)
		return models.Session{}, apperrors.ErrConfirmationRequired
	}
	return resp.session()
}

// OAuthRedirect builds authorize url with PKCE challenge, no network call is done
func (c *Client) OAuthRedirect(_ context.Context, name string, redirectTo string) (models.OAuthRedirect, error) {
	if name == "" {
		return models.OAuthRedirect{}, apperrors.ErrOAuthNotConfigured
	}

	verifier := oauth2.GenerateVerifier()
	query := url.Values{
		"provider":              {name},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"s256"},
	}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	return models.OAuthRedirect{
		Provider: name,
		URL:      c.baseURL + "/authorize?" + query.Encode(),
		Flow:     models.OAuthFlow{Verifier: verifier, RedirectTo: redirectTo},
	}, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code string, flow models.OAuthFlow) (models.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, request{
		op:       "exchange_code",
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"pkce"}},
		body:     map[string]string{"auth_code": code, "code_verifier": flow.Verifier},
		rejected: apperrors.ErrInvalidCode,
	}, &resp)
	if err != nil {
		return models.Session{}, err
	}
	return resp.session()
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var resp sessionResponse
	err := c.do(ctx, request{
		op:       "refresh",
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"refresh_token"}},
		body:     map[string]string{"refresh_token": refreshToken},
		rejected: apperrors.ErrInvalidToken,
	}, &resp)
	if err != nil {
		return models.TokenPair{}, err
	}
	return resp.tokens()
}

func (c *Client) Introspect(ctx context.Context, accessToken string) (models.Identity, error) {
	var resp userResponse
	err := c.do(ctx, request{
		op:       "introspect",
		method:   http.MethodGet,
		path:     "/user",
		bearer:   accessToken,
		rejected: apperrors.ErrInvalidToken,
	}, &resp)
	if err != nil {
		return models.Identity{}, err
	}
	return resp.identity()
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any

	// User token, api key is used when empty
	bearer string

	// Error to return when server rejects the request with 4xx status
	rejected error
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}

	bearer := r.bearer
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", r.op, apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode provider response", "op", r.op, "error", err)
			return fmt.Errorf("%s: %w: malformed payload: %w", r.op, apperrors.ErrProviderUnavailable, err)
		}
		return nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests:
		reason := describe(resp.Body)
		c.logger.Debug("Provider rejected request", "op", r.op, "status_code", resp.StatusCode, "reason", reason)
		return fmt.Errorf("%s: %w: %s", r.op, r.rejected, reason)

	default:
		c.logger.Warn("Provider failed", "op", r.op, "status_code", resp.StatusCode)
		return fmt.Errorf("%s: %w: unexpected status code %d", r.op, apperrors.ErrProviderUnavailable, resp.StatusCode)
	}
}

// describe extracts human readable reason from error body of both old and new server versions
func describe(r io.Reader) string {
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
	}

	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err := json.Unmarshal(raw, &e); err != nil {
		return strings.TrimSpace(string(raw))
	}

	for _, s := range []string{e.ErrorDescription, e.Msg, e.ErrorCode, e.Error} {
		if s != "" {
			return s
		}
	}
	return "no reason"
}
