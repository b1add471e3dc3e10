package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spese-cli/internal/amqp"
	"spese-cli/internal/app"
	"spese-cli/internal/cli"
	"spese-cli/internal/log"
)

const statsInterval = time.Hour

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting spese-worker")

	if !cfg.OutboxEnabled() {
		logger.Error("OUTBOX_DB_PATH is empty, nothing to do")
		os.Exit(1)
	}

	application, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := application.Processor.Stop(ctx); err != nil {
			logger.Warn("Outbox processor did not stop cleanly", log.FieldError, err.Error())
		}
		if err := application.Close(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err.Error())
		}
	})

	// Deliver anything queued while the worker was down
	if res, err := application.Processor.Drain(ctx); err != nil {
		logger.Error("Startup drain failed", log.FieldError, err.Error())
	} else {
		logger.Info("Startup drain finished",
			"submitted", res.Submitted,
			"retrying", res.Retrying,
			"failed", res.Failed)
	}

	if err := application.Processor.Start(ctx); err != nil {
		logger.Error("Failed to start outbox processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if application.Broker != nil {
		g.Go(func() error {
			err := application.Broker.ConsumeExpenseSubmitted(gctx, func(ctx context.Context, msg *amqp.ExpenseSubmittedMessage) error {
				logger.InfoContext(ctx, "Expense submitted",
					log.FieldExpenseID, msg.ExpenseID,
					log.FieldAmount, msg.Amount,
					log.FieldCategory, msg.Category,
					"source", msg.Source)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no broker available")
	}

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats, err := application.Processor.Stats(gctx)
				if err != nil {
					logger.Error("Failed to read outbox stats", log.FieldError, err.Error())
					continue
				}
				logger.Info("Outbox stats",
					"pending", stats.Pending,
					"processing", stats.Processing,
					"submitted", stats.Submitted,
					"failed", stats.Failed)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
	}
	cli.WaitForShutdown(ctx, done)
}
