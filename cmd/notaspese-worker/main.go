package main

import (
	"context"
	"errors"
	"os"
	"time"

	"notaspese/internal/amqp"
	"notaspese/internal/cli"
	"notaspese/internal/log"
	"notaspese/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)

	logger.Info("Starting notaspese-worker",
		"storage_backend", cfg.StorageBackend,
		"reclaim_interval", cfg.ReclaimInterval.String(),
		"reclaim_batch_size", cfg.ReclaimBatchSize)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	blobs := cli.InitObjectStore(context.Background(), logger, cfg)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled, relying on the periodic sweep only")
	}

	reclaimer := worker.NewReclaimWorker(repo, blobs.Store, cfg.ReclaimBatchSize, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeOrphanedAttachments(ctx, reclaimer.HandleOrphanMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	reclaimer.Run(ctx, cfg.ReclaimInterval)

	cli.WaitForShutdown(ctx, done)

	// Run has returned, nothing touches the stores any more
	if blobs.Cleanup != nil {
		if err := blobs.Cleanup(); err != nil {
			logger.Error("Failed to close object store", log.FieldError, err)
		}
	}
	if err := repo.Close(); err != nil {
		logger.Error("Failed to close database", log.FieldError, err)
	}
	logger.Info("Worker stopped gracefully")
}
