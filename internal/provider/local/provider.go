// Package local is a self hosted identity provider: accounts and refresh tokens live in postgres,
// access tokens are HS256 JWTs and Google sign in is optional.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/provider"
	"github.com/nkiryanov/stockgate/internal/repository"
)

type Config struct {
	Token  TokenConfig
	Google GoogleConfig

	// Hasher to use during registration or login
	// If not set than bcrypt is used
	Hasher PasswordHasher
}

type Provider struct {
	storage repository.Storage
	tokens  *TokenManager
	hasher  PasswordHasher
	google  *googleOAuth
	logger  logger.Logger

	// Compared against when account not found, so missing and existing emails take the same time
	dummyHash string
}

var _ provider.Client = (*Provider)(nil)

func New(cfg Config, storage repository.Storage, l logger.Logger) (*Provider, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	tokens, err := NewTokenManager(cfg.Token)
	if err != nil {
		return nil, err
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	dummy, err := randomPasswordHash(hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}

	return &Provider{
		storage:   storage,
		tokens:    tokens,
		hasher:    hasher,
		google:    newGoogleOAuth(cfg.Google),
		logger:    l,
		dummyHash: dummy,
	}, nil
}

func (p *Provider) SignIn(ctx context.Context, creds models.Credentials) (models.Session, error) {
	account, err := p.storage.Account().GetByEmail(ctx, normalizeEmail(creds.Email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = p.hasher.Compare(p.dummyHash, creds.Password)
		return models.Session{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.Session{}, unavailable("sign_in", err)
	}

	if err := p.hasher.Compare(account.PasswordHash, creds.Password); err != nil {
		return models.Session{}, apperrors.ErrInvalidCredentials
	}

	pair, err := p.tokens.GeneratePair(ctx, p.storage.Refresh(), account)
	if err != nil {
		return models.Session{}, unavailable("sign_in", err)
	}

	return models.Session{Identity: identityOf(account), Tokens: pair}, nil
}

// SignUp creates account, profile fields are stored by the caller
func (p *Provider) SignUp(ctx context.Context, creds models.Credentials, _ models.ProfileFields) (models.Session, error) {
	hash, err := p.hasher.Hash(creds.Password)
	if err != nil {
		return models.Session{}, fmt.Errorf("can't use this as password: %w", err)
	}

	var session models.Session
	err = p.storage.InTx(ctx, func(tx repository.Storage) error {
		account, err := tx.Account().Create(ctx, normalizeEmail(creds.Email), hash)
		if err != nil {
			return err
		}

		pair, err := p.tokens.GeneratePair(ctx, tx.Refresh(), account)
		if err != nil {
			return err
		}

		session = models.Session{Identity: identityOf(account), Tokens: pair}
		return nil
	})

	switch {
	case err == nil:
		p.logger.Info("Account created", "user_id", session.Identity.ID)
		return session, nil
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return models.Session{}, err
	default:
		return models.Session{}, unavailable("sign_up", err)
	}
}

func (p *Provider) OAuthRedirect(_ context.Context, name string, redirectTo string) (models.OAuthRedirect, error) {
	if name != provider.Google || p.google == nil {
		return models.OAuthRedirect{}, fmt.Errorf("%w: %q", apperrors.ErrOAuthNotConfigured, name)
	}
	return p.google.redirect(redirectTo), nil
}

// ExchangeCode finishes Google sign in, account is created on first sign in
func (p *Provider) ExchangeCode(ctx context.Context, code string, flow models.OAuthFlow) (models.Session, error) {
	if p.google == nil {
		return models.Session{}, apperrors.ErrOAuthNotConfigured
	}

	claims, err := p.google.exchange(ctx, code, flow)
	if err != nil {
		return models.Session{}, err
	}
	email := normalizeEmail(claims.Email)

	var session models.Session
	err = p.storage.InTx(ctx, func(tx repository.Storage) error {
		account, err := tx.Account().GetByEmail(ctx, email)
		if errors.Is(err, apperrors.ErrUserNotFound) {
			var hash string
			hash, err = randomPasswordHash(p.hasher)
			if err != nil {
				return err
			}
			account, err = tx.Account().Create(ctx, email, hash)
		}
		if err != nil {
			return err
		}

		pair, err := p.tokens.GeneratePair(ctx, tx.Refresh(), account)
		if err != nil {
			return err
		}

		session = models.Session{Identity: identityOf(account), Tokens: pair}
		return nil
	})
	if err != nil {
		return models.Session{}, unavailable("exchange_code", err)
	}

	return session, nil
}

// Refresh rotates refresh token: the used one is burned and new pair is issued
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	var pair models.TokenPair
	err := p.storage.InTx(ctx, func(tx repository.Storage) error {
		token, err := p.tokens.UseRefresh(ctx, tx.Refresh(), refreshToken)
		if err != nil {
			return err
		}

		account, err := tx.Account().GetByID(ctx, token.AccountID)
		if err != nil {
			return err
		}

		pair, err = p.tokens.GeneratePair(ctx, tx.Refresh(), account)
		return err
	})

	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
		errors.Is(err, apperrors.ErrRefreshTokenIsUsed),
		errors.Is(err, apperrors.ErrRefreshTokenExpired),
		errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	default:
		return models.TokenPair{}, unavailable("refresh", err)
	}
}

// Introspect checks token signature and that account still exists
func (p *Provider) Introspect(ctx context.Context, accessToken string) (models.Identity, error) {
	identity, err := p.tokens.ParseAccess(accessToken)
	if err != nil {
		return models.Identity{}, err
	}

	_, err = p.storage.Account().GetByID(ctx, identity.ID)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	default:
		return models.Identity{}, unavailable("introspect", err)
	}
}

func identityOf(a models.Account) models.Identity {
	return models.Identity{ID: a.ID, Email: a.Email, Role: roleAuthenticated}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func unavailable(op string, err error) error {
	if errors.Is(err, apperrors.ErrProviderUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrProviderUnavailable, err)
}
