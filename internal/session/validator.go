// Package session turns provider tokens into identities and cookies.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/models"
)

type introspector interface {
	Introspect(ctx context.Context, accessToken string) (models.Identity, error)
}

// Validator resolves access token to identity
// Any failure is reported as apperrors.ErrInvalidToken, the cause is logged and counted only
type Validator struct {
	provider introspector
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func NewValidator(p introspector, l logger.Logger, m *metrics.Metrics) *Validator {
	return &Validator{provider: p, logger: l, metrics: m}
}

func (v *Validator) Validate(ctx context.Context, accessToken string) (models.Identity, error) {
	start := time.Now()
	identity, err := v.provider.Introspect(ctx, accessToken)
	result := callResult(err)
	v.metrics.ProviderCall("introspect", result, time.Since(start))

	if err != nil {
		switch result {
		case metrics.ResultUnavailable:
			v.logger.Warn("Identity provider unavailable while validating token", "error", err)
		case metrics.ResultCanceled:
			v.logger.Debug("Token validation canceled", "error", err)
		default:
			v.logger.Debug("Access token rejected", "error", err)
		}
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	return identity, nil
}

func callResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, context.Canceled):
		return metrics.ResultCanceled
	case errors.Is(err, apperrors.ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultUnavailable
	default:
		return metrics.ResultRejected
	}
}
