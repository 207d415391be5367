package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"qacc/internal/amqp"
	"qacc/internal/cli"
	"qacc/internal/donations"
	apphttp "qacc/internal/http"
	applog "qacc/internal/log"
	"qacc/internal/passport"
	"qacc/internal/round"
	"qacc/internal/uploads"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	backend := cli.NewBackend(cfg, logger.Logger)
	backend.Caches.StartCleanup(5 * time.Minute)

	// Without AMQP, failed pins wait for the worker's sweep.
	var (
		publisher  uploads.Publisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient, publisher = c, c
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	public := cfg.Public()

	opts := round.DefaultOptions()
	opts.Logger = logger.WithComponent(applog.ComponentRound).Logger
	rounds := round.NewCalculator(backend.Client, opts)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.UploadMaxBytes,
		Logger:         logger.Logger,
	}, apphttp.Deps{
		Rounds:       rounds,
		DonationCaps: backend.Client,
		Donations: donations.NewService(backend.Client, backend.Prices, donations.Config{
			ScanURL:      cfg.ScanURL,
			NativeSymbol: cfg.ERCTokenSymbol,
		}, logger.Logger),
		Passport: passport.NewVerifier(backend.Client, passport.Thresholds{
			Analysis: cfg.GPAnalysisScoreThreshold,
			Scorer:   cfg.GPScorerScoreThreshold,
		}, logger.Logger),
		Uploads: cli.NewUploads(cfg, sqliteRepo, publisher, logger.Logger),
		Ready:   []apphttp.ReadinessChecker{sqliteRepo},
		Public:  &public,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		backend.Caches.Stop()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
	})

	logger.Info("Starting qacc server", "port", cfg.Port, "graphql_endpoint", cfg.GraphQLEndpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
