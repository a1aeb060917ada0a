package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/stockgate/internal/handlers/middleware"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/session"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type quoteProvider interface {
	quoteService
	quoteStreamer
}

type userService interface {
	authService
	profileService
}

type RouterConfig struct {
	CORSOrigins  []string
	PollInterval time.Duration
}

func NewRouter(
	cfg RouterConfig,
	users userService,
	quotes quoteProvider,
	auth *middleware.Auth,
	cookies *session.Cookies,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	authHandler := NewAuth(users, cookies, logger)

	stocks := http.NewServeMux()
	stocks.Handle("GET /stocks/{$}", handleStocksIndex())
	stocks.Handle("GET /stocks/{symbol}/current", handleCurrentQuote(quotes, logger))
	stocks.Handle("GET /stocks/{symbol}/historic", handleHistoricQuotes(quotes, logger))

	// Separate mux, "/stocks/ws/{symbol}" conflicts with "/stocks/{symbol}/current" otherwise
	stream := http.NewServeMux()
	stream.Handle("GET /stocks/ws/{symbol}", handleQuoteStream(quotes, cfg.PollInterval, cfg.CORSOrigins, m, logger))

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", authHandler.Handler()))
	root.Handle("GET /healthz", handleHealth())
	root.Handle("GET /metrics", m.Handler())
	root.Handle("GET /{$}", handleIndex())
	root.Handle("GET /users/me", handleProfileMe(users, logger))
	root.Handle("PATCH /users/me", handleProfileUpdate(users, logger))
	root.Handle("/stocks/", stocks)
	root.Handle("/stocks/ws/", stream)

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.CORS(cfg.CORSOrigins),
		auth.Auth,
	)

	return handler
}
