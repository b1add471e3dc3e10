package backend

import (
	"context"
	"errors"
	"fmt"

	"spese-cli/internal/amqp"
	"spese-cli/internal/api"
	"spese-cli/internal/api/memory"
	"spese-cli/internal/log"
	"spese-cli/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. The outbox and the AMQP
// publisher are opened for either backend; a broker that cannot be reached
// is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var res *BackendResult
	switch config.Type {
	case HTTPBackend:
		res = f.createHTTPBackend(config)
	case MemoryBackend:
		res = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.OutboxDBPath != "" {
		outbox, err := storage.Open(config.OutboxDBPath, storage.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open outbox: %w", err)
		}
		res.Outbox = outbox
		f.logger.Debug("Opened offline outbox", "db_path", config.OutboxDBPath)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, amqp.WithLogger(f.logger))
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", log.FieldError, err.Error())
		} else {
			res.Publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	res.Cleanup = res.close
	return res, nil
}

func (f *DefaultFactory) createHTTPBackend(config Config) *BackendResult {
	client := api.NewClient(api.Config{
		BaseURL:       config.APIBaseURL,
		Token:         config.APIToken,
		Timeout:       config.RequestTimeout,
		UploadTimeout: config.UploadTimeout,
		Logger:        f.logger,
	})

	f.logger.Debug("Initialized HTTP backend", "base_url", config.APIBaseURL)
	return &BackendResult{Backend: client}
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)
	return &BackendResult{Backend: store}
}

// close releases the outbox and the publisher
func (r *BackendResult) close() error {
	var errs []error
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AMQP client: %w", err))
		}
	}
	if r.Outbox != nil {
		if err := r.Outbox.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close outbox: %w", err))
		}
	}
	return errors.Join(errs...)
}
