package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/stockgate/internal/handlers/middleware"
	"github.com/nkiryanov/stockgate/internal/logger"
	"github.com/nkiryanov/stockgate/internal/provider"
	"github.com/nkiryanov/stockgate/internal/session"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultProvider        = provider.KindGoTrue
	defaultProviderTimeout = 10 * time.Second
	defaultQuoteURL        = "https://finnhub.io/api/v1"
	defaultHistoricURL     = "https://api.polygon.io/v2"
	defaultPollInterval    = 30 * time.Second
	defaultCookieSecure    = string(session.SecureAuto)
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the gateway will be run
	ListenAddr string

	// Environment: development or production, changes log format
	Environment string

	// Database to connect to
	// Keeps user profiles, and accounts of the local identity provider
	DatabaseDSN string

	// Identity provider: gotrue or local
	Provider        string
	ProviderURL     string
	ProviderKey     string
	ProviderTimeout time.Duration

	// Secret key to sign access tokens of the local provider
	SecretKey string

	// Google sign in of the local provider, disabled if empty
	GoogleClientID     string
	GoogleClientSecret string

	QuoteURL      string
	QuoteToken    string
	HistoricURL   string
	HistoricToken string
	PollInterval  time.Duration

	// Origins allowed to make credentialed cross-origin requests, CORS is off if empty
	CORSOrigins []string

	// Paths served without authentication
	PublicPaths []string

	// Secure attribute policy of session cookies: auto, always or never
	CookieSecure string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		Provider:        defaultProvider,
		ProviderTimeout: defaultProviderTimeout,
		QuoteURL:        defaultQuoteURL,
		HistoricURL:     defaultHistoricURL,
		PollInterval:    defaultPollInterval,
		PublicPaths:     slices.Clone(middleware.DefaultPublicPaths),
		CookieSecure:    defaultCookieSecure,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = splitList(value)
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":                 setString(&c.ListenAddr),
		"LOG_LEVEL":                   setString(&c.LogLevel),
		"ENVIRONMENT":                 setString(&c.Environment),
		"DATABASE_URI":                setString(&c.DatabaseDSN),
		"AUTH_PROVIDER":               setString(&c.Provider),
		"AUTH_PROVIDER_URL":           setString(&c.ProviderURL),
		"AUTH_PROVIDER_KEY":           setString(&c.ProviderKey),
		"AUTH_PROVIDER_TIMEOUT":       setDuration(&c.ProviderTimeout),
		"SECRET_KEY":                  setString(&c.SecretKey),
		"GOOGLE_CLIENT_ID":            setString(&c.GoogleClientID),
		"GOOGLE_CLIENT_SECRET":        setString(&c.GoogleClientSecret),
		"STOCK_API_BASE_URL":          setString(&c.QuoteURL),
		"STOCK_API_TOKEN":             setString(&c.QuoteToken),
		"HISTORIC_STOCK_API_BASE_URL": setString(&c.HistoricURL),
		"HISTORIC_STOCK_API_TOKEN":    setString(&c.HistoricToken),
		"STOCK_POLL_INTERVAL":         setDuration(&c.PollInterval),
		"CORS_ORIGINS":                setList(&c.CORSOrigins),
		"PUBLIC_PATHS":                setList(&c.PublicPaths),
		"COOKIE_SECURE":               setString(&c.CookieSecure),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("stockgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.Provider, "provider", "p", c.Provider, "Identity provider (gotrue, local)")
	fs.StringVarP(&c.ProviderURL, "provider-url", "u", c.ProviderURL, "GoTrue server url")
	fs.StringVarP(&c.ProviderKey, "provider-key", "k", c.ProviderKey, "GoTrue api key")
	fs.DurationVar(&c.ProviderTimeout, "provider-timeout", c.ProviderTimeout, "Identity provider request timeout")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key of the local provider")
	fs.StringVar(&c.GoogleClientID, "google-client-id", c.GoogleClientID, "Google OAuth client id")
	fs.StringVar(&c.GoogleClientSecret, "google-client-secret", c.GoogleClientSecret, "Google OAuth client secret")
	fs.StringVar(&c.QuoteURL, "quote-url", c.QuoteURL, "Realtime quote api url")
	fs.StringVar(&c.QuoteToken, "quote-token", c.QuoteToken, "Realtime quote api token")
	fs.StringVar(&c.HistoricURL, "historic-url", c.HistoricURL, "Historic quote api url")
	fs.StringVar(&c.HistoricToken, "historic-token", c.HistoricToken, "Historic quote api token")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Quote stream poll interval")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Allowed CORS origins, comma separated")
	fs.StringSliceVar(&c.PublicPaths, "public-paths", c.PublicPaths, "Paths served without authentication, comma separated")
	fs.StringVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Secure attribute of session cookies (auto, always, never)")

	return fs.Parse(args)
}

// Validate checks options that have no usable default
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}

	switch c.Provider {
	case provider.KindGoTrue:
		if c.ProviderURL == "" || c.ProviderKey == "" {
			errs = append(errs, errors.New("gotrue provider requires provider url and key"))
		}
	case provider.KindLocal:
		if c.SecretKey == "" {
			errs = append(errs, errors.New("local provider requires secret key"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown identity provider %q", c.Provider))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if _, err := session.ParseSecurePolicy(c.CookieSecure); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
