package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/stockgate/internal/db"
	"github.com/nkiryanov/stockgate/internal/handlers"
	"github.com/nkiryanov/stockgate/internal/handlers/middleware"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/metrics"
	"github.com/nkiryanov/stockgate/internal/provider"
	"github.com/nkiryanov/stockgate/internal/provider/gotrue"
	"github.com/nkiryanov/stockgate/internal/provider/local"
	"github.com/nkiryanov/stockgate/internal/repository"
	"github.com/nkiryanov/stockgate/internal/repository/postgres"
	"github.com/nkiryanov/stockgate/internal/service/auth"
	"github.com/nkiryanov/stockgate/internal/service/quotes"
	"github.com/nkiryanov/stockgate/internal/session"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	close  func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app, err := newServerApp(c, postgres.NewStorage(pool), logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	app.close = pool.Close

	return app, nil
}

func newServerApp(c *Config, storage repository.Storage, logger logger.Logger) (*ServerApp, error) {
	idp, err := newIdentityProvider(c, storage, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating identity provider. Err: %w", err)
	}

	authService, err := auth.NewService(idp, storage.Profile(), logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	quoteClient, err := quotes.NewClient(quotes.Config{
		QuoteURL:      c.QuoteURL,
		QuoteToken:    c.QuoteToken,
		HistoricURL:   c.HistoricURL,
		HistoricToken: c.HistoricToken,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("error while creating quote client. Err: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	secure, err := session.ParseSecurePolicy(c.CookieSecure)
	if err != nil {
		return nil, err
	}
	cookies := session.NewCookies(secure)

	authMiddleware := middleware.NewAuth(
		middleware.NewClassifier(c.PublicPaths),
		session.NewValidator(idp, logger, m),
		session.NewRefresher(idp, logger, m),
		cookies,
		logger,
		m,
	)

	router := handlers.NewRouter(
		handlers.RouterConfig{CORSOrigins: c.CORSOrigins, PollInterval: c.PollInterval},
		authService,
		quoteClient,
		authMiddleware,
		cookies,
		m,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    router,
		logger:     logger,
		close:      func() {},
	}, nil
}

func newIdentityProvider(c *Config, storage repository.Storage, l logger.Logger) (provider.Client, error) {
	switch c.Provider {
	case provider.KindGoTrue:
		return gotrue.NewClient(gotrue.Config{
			BaseURL: c.ProviderURL,
			APIKey:  c.ProviderKey,
			Timeout: c.ProviderTimeout,
		}, l.With("provider", provider.KindGoTrue))
	case provider.KindLocal:
		return local.New(local.Config{
			Token:  local.TokenConfig{SecretKey: c.SecretKey},
			Google: local.GoogleConfig{ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret},
		}, storage, l.With("provider", provider.KindLocal))
	default:
		return nil, fmt.Errorf("unknown identity provider %q", c.Provider)
	}
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
			_ = httpServer.Close()
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
