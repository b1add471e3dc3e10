// Package app wires the client's collaborators from configuration
package app

import (
	"context"
	"fmt"

	"spese-cli/internal/amqp"
	"spese-cli/internal/audio"
	"spese-cli/internal/backend"
	"spese-cli/internal/catalog"
	"spese-cli/internal/config"
	"spese-cli/internal/core"
	"spese-cli/internal/expenses"
	"spese-cli/internal/i18n"
	"spese-cli/internal/log"
	"spese-cli/internal/playback"
	"spese-cli/internal/services"
	"spese-cli/internal/session"
	"spese-cli/internal/storage"
	"spese-cli/internal/waveform"
)

type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Localizer *i18n.Localizer

	Backend backend.Backend
	// Outbox and Processor are nil when OUTBOX_DB_PATH is empty
	Outbox    *storage.Outbox
	Processor *services.OutboxProcessor
	// Broker and Publisher are nil when AMQP is disabled or unreachable
	Broker    *amqp.Client
	Publisher services.Publisher

	Catalog    *catalog.Store
	Expenses   *expenses.Store
	Submission *services.SubmissionService
	Manual     *services.ExpenseService

	Capturer *audio.FFmpegCapturer
	Decoder  *audio.FFmpegDecoder
	Player   *playback.FFplayOutput

	cleanup backend.CleanupFunc
}

// New builds the application for cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Discard()
	}

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("initializing backend: %w", err)
	}
	return build(cfg, logger, res), nil
}

func build(cfg *config.Config, logger *log.Logger, res *backend.BackendResult) *App {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Localizer: i18n.New(cfg.Language, cfg.Currency),
		Backend:   res.Backend,
		Outbox:    res.Outbox,
		cleanup:   res.Cleanup,
	}
	if res.Publisher != nil {
		a.Broker = res.Publisher
		a.Publisher = res.Publisher
	}

	a.Catalog = catalog.New(res.Backend,
		catalog.WithTTL(cfg.CategoryTTL),
		catalog.WithLocalizer(a.Localizer),
		catalog.WithLogger(logger))
	a.Expenses = expenses.New(res.Backend,
		expenses.WithOverviewTTL(cfg.OverviewCacheTTL),
		expenses.WithLogger(logger))

	subOpts := []services.SubmissionOption{
		services.WithSubmissionLogger(logger),
		services.OnSubmitted(func(core.Expense) { a.Expenses.Invalidate() }),
	}
	if a.Publisher != nil {
		subOpts = append(subOpts, services.WithPublisher(a.Publisher))
	}
	if a.Outbox != nil {
		subOpts = append(subOpts, services.WithOutbox(a.Outbox))
	}
	a.Submission = services.NewSubmissionService(res.Backend, subOpts...)
	a.Manual = services.NewExpenseService(a.Catalog, a.Expenses, a.Publisher, logger)

	if a.Outbox != nil {
		pc := services.DefaultOutboxProcessorConfig()
		pc.PollInterval = cfg.SyncInterval
		pc.BatchSize = cfg.SyncBatchSize
		pc.MaxRetries = cfg.MaxRetries
		procOpts := []services.ProcessorOption{services.WithProcessorLogger(logger)}
		if a.Publisher != nil {
			procOpts = append(procOpts, services.WithProcessorPublisher(a.Publisher))
		}
		a.Processor = services.NewOutboxProcessor(a.Outbox, res.Backend, pc, procOpts...)
	}

	a.Capturer = audio.NewFFmpegCapturer(audio.FFmpegConfig{
		Path:       cfg.FFmpegPath,
		Format:     cfg.InputFormat,
		Device:     cfg.InputDevice,
		SampleRate: cfg.SampleRate,
		Logger:     logger,
	})
	a.Decoder = audio.NewFFmpegDecoder(cfg.FFmpegPath, cfg.SampleRate, logger)
	a.Player = playback.NewFFplayOutput(cfg.FFplayPath)
	return a
}

// NewSession returns a session that submits through the submission service.
// renderer may be nil.
func (a *App) NewSession(kind audio.Kind, renderer *waveform.Renderer, listener func(session.Snapshot)) *session.Session {
	opts := []session.Option{
		session.WithKind(kind),
		session.WithLogger(a.Logger),
		session.WithLocalizer(a.Localizer),
		session.WithPlayback(a.Player, ""),
	}
	if renderer != nil {
		opts = append(opts, session.WithWaveform(renderer, a.Config.WaveformFPS))
	}
	if listener != nil {
		opts = append(opts, session.WithListener(listener))
	}
	var capturer audio.Capturer
	if kind == audio.KindAudio {
		capturer = a.Capturer
		opts = append(opts, session.WithDecoder(a.Decoder))
	}
	return session.New(capturer, a.Submission, opts...)
}

// Close releases the outbox and the broker connection
func (a *App) Close() error {
	if a.Processor != nil && a.Processor.IsRunning() {
		a.Processor.Stop(context.Background())
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
