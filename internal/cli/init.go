// Package cli provides common initialization for cmd/qacc, cmd/qacc-worker
// and cmd/qacc-cli.
package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"qacc/internal/cache"
	"qacc/internal/config"
	"qacc/internal/core"
	"qacc/internal/graphql"
	"qacc/internal/ipfs"
	applog "qacc/internal/log"
	"qacc/internal/qacc"
	"qacc/internal/storage"
	"qacc/internal/uploads"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default. It runs before the full config is loaded so that
// config errors are logged in the right format.
func SetupLogger(component string) *applog.Logger {
	logger := applog.New(applog.ConfigFor(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), component)).
		WithComponent(component)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return sqliteRepo
}

// Backend bundles the q/acc GraphQL client with the caches it fills.
type Backend struct {
	*qacc.Client
	Prices *qacc.Prices
	Caches *cache.Manager
}

// NewBackend wires the GraphQL client, the round cache and the token price
// cache. Requests use the caller's bearer token when one is in the context,
// falling back to QACC_API_TOKEN.
func NewBackend(cfg *config.Config, logger *slog.Logger) *Backend {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	gql := graphql.NewClient(cfg.GraphQLEndpoint,
		graphql.WithHTTPClient(httpClient),
		graphql.WithTokenSource(graphql.ContextToken{Fallback: graphql.StaticToken(cfg.APIToken)}),
		graphql.WithLogger(logger),
	)

	caches := cache.NewManager(logger.With(applog.FieldComponent, applog.ComponentCache))

	roundCache := cache.NewLRUCache[[]core.Round](1, cfg.RoundCacheTTL)
	priceCache := cache.NewLRUCache[qacc.TokenPrice](256, cfg.PriceCacheTTL)
	caches.Register(roundCache)
	caches.Register(priceCache)

	return &Backend{
		Client: qacc.NewClient(gql,
			qacc.WithRoundLoader(cache.NewLoader[[]core.Round](roundCache)),
			qacc.WithLogger(logger),
		),
		Prices: qacc.NewPrices(qacc.PricesConfig{
			BaseURL:      cfg.SquidAPIURL,
			IntegratorID: cfg.SquidIntegratorID,
			WPOLAddress:  cfg.WPOLTokenAddress,
			Cache:        priceCache,
			HTTPClient:   httpClient,
			Logger:       logger,
		}),
		Caches: caches,
	}
}

// NewUploads wires the upload service to the IPFS node. publisher may be nil,
// in which case failed pins are only picked up by the worker's sweep.
func NewUploads(cfg *config.Config, repo *storage.SQLiteRepository, publisher uploads.Publisher, logger *slog.Logger) *uploads.Service {
	node := ipfs.NewClient(cfg.IPFSAPIURL,
		ipfs.WithToken(cfg.IPFSAPIToken),
		ipfs.WithLogger(logger),
	)
	return uploads.NewService(repo, node, publisher, uploads.Config{
		MaxBytes:   cfg.UploadMaxBytes,
		GatewayURL: cfg.IPFSGatewayURL,
	}, logger)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
