package quotes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		QuoteURL:      srv.URL + "/finnhub/",
		QuoteToken:    "quote-token",
		HistoricURL:   srv.URL + "/polygon",
		HistoricToken: "historic-token",
	}, logger.NewNoOpLogger())
	require.NoError(t, err)
	return c
}

func TestClient_New(t *testing.T) {
	_, err := NewClient(Config{QuoteURL: "not a url", HistoricURL: "http://localhost"}, logger.NewNoOpLogger())
	require.Error(t, err)
}

func TestClient_Current(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/finnhub/quote", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			assert.Equal(t, "quote-token", r.Header.Get("X-Finnhub-Token"))
			_, _ = w.Write([]byte(`{"c": 189.84, "d": 1.2, "t": 1700000000}`))
		}))

		q, err := c.Current(t.Context(), "AAPL")

		require.NoError(t, err)
		assert.Equal(t, "189.84", q.Price.String())
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), q.Timestamp)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"c": 0, "d": null, "t": 0}`))
		}))

		_, err := c.Current(t.Context(), "NOPE")

		require.ErrorIs(t, err, apperrors.ErrQuoteNotFound)
	})

	t.Run("not found status", func(t *testing.T) {
		c := newTestClient(t, http.NotFoundHandler())

		_, err := c.Current(t.Context(), "NOPE")

		require.ErrorIs(t, err, apperrors.ErrQuoteNotFound)
	})

	t.Run("upstream failures", func(t *testing.T) {
		tests := []struct {
			name string
			h    http.HandlerFunc
		}{
			{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
			{"unauthorized", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
			{"throttled", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "10")
				w.WriteHeader(http.StatusTooManyRequests)
			}},
			{"garbage", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := newTestClient(t, tt.h)

				_, err := c.Current(t.Context(), "AAPL")

				require.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
			})
		}
	})

	t.Run("server down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c, err := NewClient(Config{QuoteURL: srv.URL, HistoricURL: srv.URL}, logger.NewNoOpLogger())
		require.NoError(t, err)

		_, err = c.Current(t.Context(), "AAPL")

		require.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
	})
}

func TestClient_Historic(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/polygon/aggs/ticker/AAPL/range/1/day/1700000000000/1700600000000", r.URL.Path)
			assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
			assert.Equal(t, "asc", r.URL.Query().Get("sort"))
			assert.Equal(t, "historic-token", r.URL.Query().Get("apiKey"))
			_, _ = w.Write([]byte(`{
				"ticker": "AAPL",
				"resultsCount": 2,
				"results": [
					{"c": 189.5, "o": 188, "t": 1700000000000},
					{"c": 190.25, "o": 189, "t": 1700086400000}
				]
			}`))
		}))

		got, err := c.Historic(t.Context(), "AAPL", models.HistoricQuery{
			From:    1700000000000,
			To:      1700600000000,
			GroupBy: models.GroupByDay,
		})

		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "189.5", got[0].Price.String())
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got[0].Timestamp)
		assert.Equal(t, "190.25", got[1].Price.String())
	})

	t.Run("no results", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"ticker": "AAPL", "resultsCount": 0}`))
		}))

		got, err := c.Historic(t.Context(), "AAPL", models.HistoricQuery{GroupBy: models.GroupByDay})

		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("api key not leaked in errors", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c, err := NewClient(Config{QuoteURL: srv.URL, HistoricURL: srv.URL, HistoricToken: "secret-key"}, logger.NewNoOpLogger())
		require.NoError(t, err)

		_, err = c.Historic(t.Context(), "AAPL", models.HistoricQuery{GroupBy: models.GroupByDay})

		require.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
		assert.NotContains(t, err.Error(), "secret-key")
	})
}

func TestClient_Stream(t *testing.T) {
	t.Run("polls until cancelled", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"c": 10.5, "t": 1}`))
		}))

		ctx, cancel := context.WithCancel(t.Context())
		var got []models.Quote
		start := time.Now()

		err := c.Stream(ctx, "AAPL", 10*time.Millisecond, func(q models.Quote) error {
			got = append(got, q)
			if len(got) == 3 {
				cancel()
			}
			return nil
		})

		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, q := range got {
			assert.Equal(t, "10.5", q.Price.String())
			assert.False(t, q.Timestamp.Before(start.Truncate(time.Second)), "timestamp is poll time")
		}
	})

	t.Run("failed polls are skipped", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"c": 1, "t": 1}`))
		}))

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		sent := 0

		err := c.Stream(ctx, "AAPL", 10*time.Millisecond, func(models.Quote) error {
			sent++
			cancel()
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.GreaterOrEqual(t, calls.Load(), int32(2))
	})

	t.Run("send error stops stream", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"c": 1, "t": 1}`))
		}))
		closed := errors.New("connection closed")

		err := c.Stream(t.Context(), "AAPL", time.Hour, func(models.Quote) error {
			return closed
		})

		require.ErrorIs(t, err, closed)
	})
}
