package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/models"
)

// Adapter types to use functions as provider
type introspectFunc func(ctx context.Context, accessToken string) (models.Identity, error)

func (f introspectFunc) Introspect(ctx context.Context, accessToken string) (models.Identity, error) {
	return f(ctx, accessToken)
}

type refreshFunc func(ctx context.Context, refreshToken string) (models.TokenPair, error)

func (f refreshFunc) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	return f(ctx, refreshToken)
}

func Test_Validator(t *testing.T) {
	t.Parallel()

	identity := models.Identity{ID: uuid.New(), Email: "nk@example.com"}

	t.Run("valid token", func(t *testing.T) {
		v := NewValidator(introspectFunc(func(_ context.Context, token string) (models.Identity, error) {
			require.Equal(t, "access", token)
			return identity, nil
		}), logger.NewNoOpLogger(), nil)

		got, err := v.Validate(t.Context(), "access")

		require.NoError(t, err)
		assert.Equal(t, identity, got)
	})

	t.Run("collapse failures to invalid token", func(t *testing.T) {
		causes := []error{
			apperrors.ErrInvalidToken,
			apperrors.ErrProviderUnavailable,
			context.DeadlineExceeded,
			errors.New("unexpected"),
		}

		for _, cause := range causes {
			t.Run(cause.Error(), func(t *testing.T) {
				v := NewValidator(introspectFunc(func(context.Context, string) (models.Identity, error) {
					return models.Identity{}, cause
				}), logger.NewNoOpLogger(), nil)

				_, err := v.Validate(t.Context(), "access")

				require.ErrorIs(t, err, apperrors.ErrInvalidToken)
			})
		}
	})

	t.Run("count provider results", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		var cause error
		v := NewValidator(introspectFunc(func(context.Context, string) (models.Identity, error) {
			if cause != nil {
				return models.Identity{}, cause
			}
			return identity, nil
		}), logger.NewNoOpLogger(), m)

		for _, err := range []error{
			apperrors.ErrProviderUnavailable,
			fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, context.Canceled),
			nil,
		} {
			cause = err
			_, _ = v.Validate(t.Context(), "access")
		}

		expected := `
# HELP stockgate_provider_requests_total Calls to the identity provider by operation and result
# TYPE stockgate_provider_requests_total counter
stockgate_provider_requests_total{operation="introspect",result="canceled"} 1
stockgate_provider_requests_total{operation="introspect",result="ok"} 1
stockgate_provider_requests_total{operation="introspect",result="unavailable"} 1
`
		err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "stockgate_provider_requests_total")
		require.NoError(t, err)
	})
}

func Test_Refresher(t *testing.T) {
	t.Parallel()

	pair := models.TokenPair{Access: "new-access", Refresh: "new-refresh"}

	t.Run("refresh ok", func(t *testing.T) {
		r := NewRefresher(refreshFunc(func(_ context.Context, token string) (models.TokenPair, error) {
			require.Equal(t, "refresh", token)
			return pair, nil
		}), logger.NewNoOpLogger(), nil)

		got, err := r.Refresh(t.Context(), "refresh")

		require.NoError(t, err)
		assert.Equal(t, pair, got)
	})

	t.Run("collapse failures to invalid token", func(t *testing.T) {
		for _, cause := range []error{apperrors.ErrInvalidToken, apperrors.ErrProviderUnavailable} {
			r := NewRefresher(refreshFunc(func(context.Context, string) (models.TokenPair, error) {
				return models.TokenPair{}, cause
			}), logger.NewNoOpLogger(), nil)

			_, err := r.Refresh(t.Context(), "refresh")

			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		}
	})

	t.Run("concurrent refresh of same token is coalesced", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})

		r := NewRefresher(refreshFunc(func(context.Context, string) (models.TokenPair, error) {
			calls.Add(1)
			<-release
			return pair, nil
		}), logger.NewNoOpLogger(), nil)

		const n = 5
		var wg sync.WaitGroup
		results := make([]models.TokenPair, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := r.Refresh(context.Background(), "refresh")
				assert.NoError(t, err)
				results[i] = got
			}()
		}

		// Let all goroutines join the in-flight call before it completes
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, got := range results {
			assert.Equal(t, pair, got)
		}
	})

	t.Run("canceled caller does not fail the others", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})
		providerCtxErr := make(chan error, 1)

		r := NewRefresher(refreshFunc(func(ctx context.Context, _ string) (models.TokenPair, error) {
			calls.Add(1)
			<-release
			providerCtxErr <- ctx.Err()
			return pair, nil
		}), logger.NewNoOpLogger(), nil)

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		firstErr := make(chan error, 1)
		go func() {
			_, err := r.Refresh(firstCtx, "refresh")
			firstErr <- err
		}()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

		type result struct {
			pair models.TokenPair
			err  error
		}
		second := make(chan result, 1)
		go func() {
			got, err := r.Refresh(context.Background(), "refresh")
			second <- result{pair: got, err: err}
		}()
		time.Sleep(50 * time.Millisecond)

		cancelFirst()
		select {
		case err := <-firstErr:
			require.ErrorIs(t, err, context.Canceled)
			require.ErrorIs(t, err, apperrors.ErrInvalidToken)
		case <-time.After(time.Second):
			t.Fatal("canceled caller should stop waiting right away")
		}

		close(release)
		got := <-second
		require.NoError(t, got.err)
		assert.Equal(t, pair, got.pair)
		assert.NoError(t, <-providerCtxErr, "provider call is not canceled with the first caller")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("caller stops waiting when its context is done", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		r := NewRefresher(refreshFunc(func(context.Context, string) (models.TokenPair, error) {
			<-release
			return pair, nil
		}), logger.NewNoOpLogger(), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := r.Refresh(ctx, "refresh")

		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("different tokens are not coalesced", func(t *testing.T) {
		var calls atomic.Int32
		r := NewRefresher(refreshFunc(func(context.Context, string) (models.TokenPair, error) {
			calls.Add(1)
			return pair, nil
		}), logger.NewNoOpLogger(), nil)

		_, err := r.Refresh(t.Context(), "first")
		require.NoError(t, err)
		_, err = r.Refresh(t.Context(), "second")
		require.NoError(t, err)

		assert.Equal(t, int32(2), calls.Load())
	})
}
