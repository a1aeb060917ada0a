package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
	"github.com/nkiryanov/stockgate/internal/provider"
	"github.com/nkiryanov/stockgate/internal/repository"
)

// Auth service: identity provider calls plus the user profile kept by the gateway
type Service struct {
	provider provider.Client
	profiles repository.ProfileRepo
	logger   logger.Logger
}

func NewService(p provider.Client, profiles repository.ProfileRepo, l logger.Logger) (*Service, error) {
	if p == nil || profiles == nil {
		return nil, errors.New("provider and profile repo must not be nil")
	}

	return &Service{
		provider: p,
		profiles: profiles,
		logger:   l,
	}, nil
}

func (s *Service) Login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	return s.provider.SignIn(ctx, creds)
}

// Register signs user up and stores the profile
// Profile write failure is only logged, the account exists at the provider already
func (s *Service) Register(ctx context.Context, creds models.Credentials, fields models.ProfileFields) (models.Session, error) {
	session, err := s.provider.SignUp(ctx, creds, fields)
	if err != nil {
		return session, err
	}

	_, err = s.profiles.Create(ctx, models.Profile{
		ID:        session.Identity.ID,
		Email:     session.Identity.Email,
		FirstName: fields.FirstName,
		LastName:  fields.LastName,
	})
	if err != nil {
		s.logger.Error("Failed to create profile of registered user", "user_id", session.Identity.ID, "error", err)
	}

	return session, nil
}

func (s *Service) GoogleRedirect(ctx context.Context, redirectTo string) (models.OAuthRedirect, error) {
	return s.provider.OAuthRedirect(ctx, provider.Google, redirectTo)
}

// ExchangeGoogleCode finishes Google sign in, profile is created on first sign in
func (s *Service) ExchangeGoogleCode(ctx context.Context, code string, flow models.OAuthFlow) (models.Session, error) {
	session, err := s.provider.ExchangeCode(ctx, code, flow)
	if err != nil {
		return session, err
	}

	_, err = s.profiles.Ensure(ctx, models.Profile{
		ID:    session.Identity.ID,
		Email: session.Identity.Email,
	})
	if err != nil {
		s.logger.Error("Failed to ensure profile of signed in user", "user_id", session.Identity.ID, "error", err)
	}

	return session, nil
}

func (s *Service) Profile(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return profile, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (models.Profile, error) {
	profile, err := s.profiles.Update(ctx, id, update)
	if err != nil {
		return profile, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}
