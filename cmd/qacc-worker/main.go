package main

import (
	"context"
	"errors"
	"os"
	"time"

	"qacc/internal/amqp"
	"qacc/internal/cli"
	applog "qacc/internal/log"
	"qacc/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting qacc-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// The worker retries pins itself, so it never queues new requests.
	uploadService := cli.NewUploads(cfg, sqliteRepo, nil, logger.Logger)
	pinWorker := worker.NewPinWorker(sqliteRepo, uploadService, cfg.PinBatchSize, cfg.PinMaxAttempts)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient = c
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - relying on the periodic sweep")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup pin check...")
	if err := pinWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup pin check", "error", err)
	}

	scheduler := worker.NewScheduler(ctx, pinWorker)
	if err := scheduler.Register(cfg.PinSweepSchedule); err != nil {
		logger.Error("Failed to register pin sweep", "error", err, "schedule", cfg.PinSweepSchedule)
		os.Exit(1)
	}
	scheduler.Start()

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumePinRequests(ctx, pinWorker.HandlePinMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	scheduler.Stop()
	logger.Info("Worker shutdown complete")
}
