// Package quotes reads stock prices from the realtime (Finnhub compatible) and historic (Polygon compatible) quote APIs.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/stockgate/internal/apperrors"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/models"
)

const (
	defaultTimeout = 5 * time.Second

	quoteTokenHeader = "X-Finnhub-Token"
)

type Config struct {
	QuoteURL   string
	QuoteToken string

	HistoricURL   string
	HistoricToken string

	// Timeout of every upstream request
	// If not set than default is used
	Timeout time.Duration
}

type Client struct {
	quoteURL      string
	quoteToken    string
	historicURL   string
	historicToken string

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	for _, u := range []string{cfg.QuoteURL, cfg.HistoricURL} {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("quote api url %q is not valid absolute url", u)
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		quoteURL:      strings.TrimRight(cfg.QuoteURL, "/"),
		quoteToken:    cfg.QuoteToken,
		historicURL:   strings.TrimRight(cfg.HistoricURL, "/"),
		historicToken: cfg.HistoricToken,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        l,
	}, nil
}

type currentResponse struct {
	Price     decimal.Decimal `json:"c"`
	Timestamp int64           `json:"t"` // seconds
}

type historicResponse struct {
	Results []struct {
		Price     decimal.Decimal `json:"c"`
		Timestamp int64           `json:"t"` // milliseconds
	} `json:"results"`
}

// Current returns the latest quote
// Unknown symbol is reported by upstream as zero quote, it's apperrors.ErrQuoteNotFound here
func (c *Client) Current(ctx context.Context, symbol string) (models.Quote, error) {
	u := c.quoteURL + "/quote?" + url.Values{"symbol": {symbol}}.Encode()

	var resp currentResponse
	if err := c.get(ctx, u, http.Header{quoteTokenHeader: {c.quoteToken}}, &resp); err != nil {
		return models.Quote{}, err
	}

	if resp.Timestamp == 0 && resp.Price.IsZero() {
		return models.Quote{}, fmt.Errorf("%w: %s", apperrors.ErrQuoteNotFound, symbol)
	}

	return models.Quote{
		Price:     resp.Price,
		Timestamp: time.Unix(resp.Timestamp, 0).UTC(),
	}, nil
}

// Historic returns aggregated close prices in ascending time order
func (c *Client) Historic(ctx context.Context, symbol string, q models.HistoricQuery) ([]models.Quote, error) {
	u := fmt.Sprintf("%s/aggs/ticker/%s/range/1/%s/%d/%d?%s",
		c.historicURL,
		url.PathEscape(symbol),
		q.GroupBy,
		q.From,
		q.To,
		url.Values{"adjusted": {"true"}, "sort": {"asc"}, "apiKey": {c.historicToken}}.Encode(),
	)

	var resp historicResponse
	if err := c.get(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	quotes := make([]models.Quote, 0, len(resp.Results))
	for _, r := range resp.Results {
		quotes = append(quotes, models.Quote{
			Price:     r.Price,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return quotes, nil
}

func (c *Client) get(ctx context.Context, u string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %w", apperrors.ErrQuoteUnavailable, redact(err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		return c.processSuccess(resp, out)
	case http.StatusNotFound:
		return apperrors.ErrQuoteNotFound
	case http.StatusTooManyRequests:
		return c.processTooManyRequests(resp)
	default:
		c.logger.Warn("Quote api failed", "status_code", resp.StatusCode, "path", req.URL.Path)
		return fmt.Errorf("%w: unexpected status code %d", apperrors.ErrQuoteUnavailable, resp.StatusCode)
	}
}

func (c *Client) processSuccess(resp *http.Response, out any) error {
	err := json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		c.logger.Warn("Failed to decode quote response", "error", err)
		return fmt.Errorf("%w: failed to decode response: %w", apperrors.ErrQuoteUnavailable, err)
	}
	return nil
}

func (c *Client) processTooManyRequests(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default to 60 seconds if parsing fails
	}

	c.logger.Warn("Quote api throttled", "retry_after", retryAfter)
	return fmt.Errorf("%w: retry after %d seconds", apperrors.ErrQuoteUnavailable, retryAfter)
}

// redact drops request url from transport errors, historic api key is in query
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
