package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/models"
)

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// Refresher exchanges refresh token for a new pair
// Concurrent calls with the same refresh token share one provider call
type Refresher struct {
	provider refresher
	logger   logger.Logger
	metrics  *metrics.Metrics

	group singleflight.Group
}

func NewRefresher(p refresher, l logger.Logger, m *metrics.Metrics) *Refresher {
	return &Refresher{provider: p, logger: l, metrics: m}
}

// Refresh returns apperrors.ErrInvalidToken on any failure
// Shared provider call is detached from callers cancellation and bounded by provider client timeout,
// each caller stops waiting when its own ctx is done
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	callCtx := context.WithoutCancel(ctx)

	ch := r.group.DoChan(refreshToken, func() (any, error) {
		start := time.Now()
		pair, err := r.provider.Refresh(callCtx, refreshToken)
		result := callResult(err)
		r.metrics.ProviderCall("refresh", result, time.Since(start))

		if result == metrics.ResultUnavailable {
			r.logger.Warn("Identity provider unavailable while refreshing token", "error", err)
		}
		return pair, err
	})

	select {
	case <-ctx.Done():
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, ctx.Err())
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("Refresh call shared with concurrent request")
		}
		if res.Err != nil {
			return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, res.Err)
		}
		return res.Val.(models.TokenPair), nil
	}
}
