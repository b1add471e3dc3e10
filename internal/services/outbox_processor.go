package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spese-cli/internal/amqp"
	"spese-cli/internal/api"
	"spese-cli/internal/log"
	"spese-cli/internal/storage"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	// PollInterval is how often to check for pending uploads (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of uploads delivered per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before an upload is failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often submitted uploads are purged (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old submitted uploads must be before purge (default: 24h)
	CleanupAge time.Duration

	// StaleAfter returns claimed uploads to pending after a crash (default: 10m)
	StaleAfter time.Duration
}

// DefaultOutboxProcessorConfig returns sensible defaults
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
		StaleAfter:      10 * time.Minute,
	}
}

// DrainResult counts what one drain or batch did
type DrainResult struct {
	Submitted int
	Retrying  int
	Failed    int
}

func (r *DrainResult) add(o DrainResult) {
	r.Submitted += o.Submitted
	r.Retrying += o.Retrying
	r.Failed += o.Failed
}

// OutboxProcessor delivers queued uploads to the backend
type OutboxProcessor struct {
	outbox    *storage.Outbox
	uploader  api.ExpenseUploader
	publisher Publisher
	config    OutboxProcessorConfig
	logger    *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type ProcessorOption func(*OutboxProcessor)

func WithProcessorPublisher(p Publisher) ProcessorOption {
	return func(op *OutboxProcessor) { op.publisher = p }
}

func WithProcessorLogger(l *log.Logger) ProcessorOption {
	return func(op *OutboxProcessor) { op.logger = l }
}

func NewOutboxProcessor(outbox *storage.Outbox, uploader api.ExpenseUploader, config OutboxProcessorConfig, opts ...ProcessorOption) *OutboxProcessor {
	p := &OutboxProcessor{
		outbox:   outbox,
		uploader: uploader,
		config:   config,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Discard()
	}
	p.logger = p.logger.WithComponent(log.ComponentOutbox)
	return p
}

// Start begins the processing loop. Returns an error if already running.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("outbox processor is already running")
	}
	if p.outbox == nil || p.uploader == nil {
		p.mu.Unlock()
		return fmt.Errorf("outbox processor is not configured")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	if _, err := p.outbox.ResetStaleProcessing(ctx, p.config.StaleAfter); err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale outbox uploads", log.FieldError, err)
	}

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Outbox processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Outbox processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *OutboxProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Done is closed when the processing loop exits
func (p *OutboxProcessor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

func (p *OutboxProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx, p.stopCh, nil)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx, p.stopCh, nil)
		case <-cleanupTicker.C:
			p.cleanupSubmitted(ctx)
		}
	}
}

// Drain delivers every pending upload once and returns what happened.
// Uploads that fail with a retryable error stay pending for the next run.
func (p *OutboxProcessor) Drain(ctx context.Context) (DrainResult, error) {
	var total DrainResult
	if p.outbox == nil || p.uploader == nil {
		return total, ErrOutboxDisabled
	}
	if _, err := p.outbox.ResetStaleProcessing(ctx, p.config.StaleAfter); err != nil {
		return total, err
	}

	seen := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, n, err := p.processBatch(ctx, nil, seen)
		total.add(res)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// processBatch delivers one batch, skipping ids already in seen. It returns
// the outcome and how many uploads were attempted.
func (p *OutboxProcessor) processBatch(ctx context.Context, stopCh <-chan struct{}, seen map[string]bool) (DrainResult, int, error) {
	var res DrainResult

	items, err := p.outbox.DequeueBatch(ctx, p.config.BatchSize+len(seen))
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to dequeue outbox batch", log.FieldError, err)
		return res, 0, err
	}

	attempted := 0
	for _, item := range items {
		if seen != nil {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
		}

		select {
		case <-stopCh:
			return res, attempted, nil
		case <-ctx.Done():
			return res, attempted, ctx.Err()
		default:
		}

		if err := p.outbox.MarkProcessing(ctx, item.ID); err != nil {
			if !errors.Is(err, storage.ErrNotPending) {
				p.logger.ErrorContext(ctx, "Failed to claim outbox upload",
					log.FieldOutboxID, item.ID, log.FieldError, err)
			}
			continue
		}
		attempted++

		switch p.deliver(ctx, item) {
		case outcomeSubmitted:
			res.Submitted++
		case outcomeRetry:
			res.Retrying++
		case outcomeFailed:
			res.Failed++
		}
		if attempted >= p.config.BatchSize {
			break
		}
	}

	if attempted > 0 {
		p.logger.DebugContext(ctx, "Processed outbox batch",
			"submitted", res.Submitted,
			"retrying", res.Retrying,
			"failed", res.Failed)
	}
	return res, attempted, nil
}

type outcome int

const (
	outcomeSubmitted outcome = iota
	outcomeRetry
	outcomeFailed
)

func (p *OutboxProcessor) deliver(ctx context.Context, item storage.PendingUpload) outcome {
	uctx := ctx
	if item.SessionID != "" {
		uctx = api.WithSessionID(ctx, item.SessionID)
	}

	result, err := p.uploader.UploadExpense(uctx, queuedFile{item: item})
	if err != nil {
		return p.handleFailure(ctx, item, err)
	}

	if err := p.outbox.MarkSubmitted(ctx, item.ID, result.Expense.ID); err != nil {
		// The expense exists on the backend, do not deliver it twice
		p.logger.ErrorContext(ctx, "Failed to mark outbox upload submitted",
			log.FieldOutboxID, item.ID, log.FieldError, err)
	}

	if p.publisher != nil {
		msg := amqp.NewExpenseSubmittedMessage(result.Expense, item.SessionID, amqp.SourceOutbox)
		if err := p.publisher.PublishExpenseSubmitted(ctx, msg); err != nil {
			p.logger.WarnContext(ctx, "Failed to publish expense submitted message",
				log.FieldExpenseID, result.Expense.ID, log.FieldError, err)
		}
	}
	return outcomeSubmitted
}

func (p *OutboxProcessor) handleFailure(ctx context.Context, item storage.PendingUpload, cause error) outcome {
	// A rejected recording will be rejected again
	if errors.Is(cause, api.ErrUnprocessable) || api.KindOf(cause) == api.KindRequestSetup {
		if err := p.outbox.MarkFailed(ctx, item.ID, cause); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark outbox upload failed",
				log.FieldOutboxID, item.ID, log.FieldError, err)
		}
		return outcomeFailed
	}

	_, failed, err := p.outbox.RecordFailure(ctx, item.ID, cause, p.config.MaxRetries)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to record outbox attempt",
			log.FieldOutboxID, item.ID, log.FieldError, err)
		return outcomeRetry
	}
	if failed {
		p.logger.ErrorContext(ctx, "Outbox upload failed permanently after max retries",
			log.FieldOutboxID, item.ID,
			log.FieldAttempt, item.Attempts+1)
		return outcomeFailed
	}
	return outcomeRetry
}

func (p *OutboxProcessor) cleanupSubmitted(ctx context.Context) {
	n, err := p.outbox.CleanupSubmitted(ctx, p.config.CleanupAge)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to cleanup submitted uploads", log.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Cleaned up submitted uploads", "count", n)
	}
}

func (p *OutboxProcessor) Stats(ctx context.Context) (storage.Stats, error) {
	return p.outbox.Stats(ctx)
}

// RetryFailed resets all failed uploads for retry
func (p *OutboxProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.outbox.RetryFailed(ctx)
}
