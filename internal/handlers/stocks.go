package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/handlers/render"
	"github.com/nkiryanov/stockgate/internal/handlers/userctx"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
)

const (
	msgQuoteNotFound    = "Quote not found"
	msgQuoteUnavailable = "Quote service unavailable"
)

type quoteService interface {
	// Has to return apperrors.ErrQuoteNotFound for unknown symbol
	// and apperrors.ErrQuoteUnavailable when upstream failed
	Current(ctx context.Context, symbol string) (models.Quote, error)
	Historic(ctx context.Context, symbol string, q models.HistoricQuery) ([]models.Quote, error)
}

type symbolRequest struct {
	Symbol string `json:"symbol" validate:"required,ticker"`
}

// bindSymbol reads {symbol} path value, symbols are upper-cased
func bindSymbol(w http.ResponseWriter, r *http.Request) (string, error) {
	req := symbolRequest{Symbol: strings.ToUpper(r.PathValue("symbol"))}
	if err := render.Validate(w, req); err != nil {
		return "", err
	}
	return req.Symbol, nil
}

func handleIndex() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, "service is working")
	})
}

func handleHealth() http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, response{Status: "ok"})
	})
}

func handleStocksIndex() http.Handler {
	type response struct {
		Message string          `json:"message"`
		User    models.Identity `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{Message: "Stocks service", User: user})
	})
}

func handleCurrentQuote(quotes quoteService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol, err := bindSymbol(w, r)
		if err != nil {
			return
		}

		quote, err := quotes.Current(r.Context(), symbol)
		if err != nil {
			quoteFailure(w, l, symbol, err)
			return
		}

		render.JSON(w, quote)
	})
}

func handleHistoricQuotes(quotes quoteService, l logger.Logger) http.Handler {
	type request struct {
		Symbol  string `json:"symbol" validate:"required,ticker"`
		From    int64  `json:"from_timestamp" validate:"gte=0"`
		To      int64  `json:"to_timestamp" validate:"gtefield=From"`
		GroupBy string `json:"group_by" validate:"required,oneof=minute hour day week month quarter year"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		fields := make(map[string]string)

		req := request{
			Symbol:  strings.ToUpper(r.PathValue("symbol")),
			From:    queryInt(query, "from_timestamp", fields),
			To:      queryInt(query, "to_timestamp", fields),
			GroupBy: query.Get("group_by"),
		}
		if len(fields) > 0 {
			render.JSONWithStatus(w, render.ErrorResponse{Detail: render.ValidationFailedMessage, Fields: fields}, http.StatusBadRequest)
			return
		}
		if err := render.Validate(w, req); err != nil {
			return
		}

		got, err := quotes.Historic(r.Context(), req.Symbol, models.HistoricQuery{
			From:    req.From,
			To:      req.To,
			GroupBy: models.GroupBy(req.GroupBy),
		})
		if err != nil {
			quoteFailure(w, l, req.Symbol, err)
			return
		}

		render.JSON(w, got)
	})
}

// queryInt parses required integer query param, problems are collected to fields
func queryInt(q url.Values, key string, fields map[string]string) int64 {
	raw := q.Get(key)
	if raw == "" {
		fields[key] = "This field is required"
		return 0
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fields[key] = "Must be an integer"
		return 0
	}
	return v
}

func quoteFailure(w http.ResponseWriter, l logger.Logger, symbol string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrQuoteNotFound):
		render.Detail(w, msgQuoteNotFound, http.StatusNotFound)
	case errors.Is(err, apperrors.ErrQuoteUnavailable):
		l.Warn("Quote service unavailable", "symbol", symbol, "error", err)
		render.Detail(w, msgQuoteUnavailable, http.StatusBadGateway)
	default:
		l.Error("Quote request failed", "symbol", symbol, "error", err)
		render.Detail(w, msgInternalError, http.StatusInternalServerError)
	}
}
