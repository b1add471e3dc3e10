package services

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"spese-cli/internal/amqp"
	"spese-cli/internal/api"
	"spese-cli/internal/core"
	"spese-cli/internal/log"
	"spese-cli/internal/storage"
)

// SubmissionService wraps an uploader: accepted expenses are announced and
// hooks run, undeliverable files can be queued in the outbox.
type SubmissionService struct {
	uploader  api.ExpenseUploader
	publisher Publisher
	outbox    Queue
	hooks     []func(core.Expense)
	logger    *log.StructuredLogger
}

type SubmissionOption func(*SubmissionService)

func WithPublisher(p Publisher) SubmissionOption {
	return func(s *SubmissionService) { s.publisher = p }
}

func WithOutbox(q Queue) SubmissionOption {
	return func(s *SubmissionService) { s.outbox = q }
}

// OnSubmitted registers fn to run after every accepted upload
func OnSubmitted(fn func(core.Expense)) SubmissionOption {
	return func(s *SubmissionService) { s.hooks = append(s.hooks, fn) }
}

func WithSubmissionLogger(l *log.Logger) SubmissionOption {
	return func(s *SubmissionService) { s.logger = log.NewStructuredLogger(l) }
}

func NewSubmissionService(uploader api.ExpenseUploader, opts ...SubmissionOption) *SubmissionService {
	s := &SubmissionService{uploader: uploader}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewStructuredLogger(nil)
	}
	return s
}

// UploadExpense uploads f. A failed notification does not fail the upload.
func (s *SubmissionService) UploadExpense(ctx context.Context, f api.File) (*api.UploadResult, error) {
	res, err := s.uploader.UploadExpense(ctx, f)
	if err != nil {
		return nil, err
	}

	sessionID := api.SessionIDFromContext(ctx)
	e := res.Expense
	s.logger.LogExpenseSubmitted(ctx, sessionID, e.ID, e.Description, core.FormatAmount(e.Amount), e.Category, e.Subcategory)

	s.announce(ctx, e, sessionID, amqp.SourceUpload)
	return res, nil
}

func (s *SubmissionService) announce(ctx context.Context, e core.Expense, sessionID, source string) {
	for _, fn := range s.hooks {
		fn(e)
	}
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseSubmittedMessage(e, sessionID, source)
	if err := s.publisher.PublishExpenseSubmitted(ctx, msg); err != nil {
		s.logger.LogError(ctx, "Failed to publish expense submitted message", err, log.OpPublish,
			log.NewFields().WithExpense(e.ID, e.Description, core.FormatAmount(e.Amount), e.Category, e.Subcategory))
	}
}

// Queue stores f in the outbox for a later flush
func (s *SubmissionService) Queue(ctx context.Context, f api.File) (storage.PendingUpload, error) {
	if s.outbox == nil {
		return storage.PendingUpload{}, ErrOutboxDisabled
	}
	if f == nil {
		return storage.PendingUpload{}, fmt.Errorf("queue upload: no file")
	}
	data, err := io.ReadAll(f.Reader())
	if err != nil {
		return storage.PendingUpload{}, fmt.Errorf("read upload: %w", err)
	}
	return s.outbox.Enqueue(ctx, storage.Upload{
		SessionID: api.SessionIDFromContext(ctx),
		FileName:  f.Name(),
		MIMEType:  f.MIMEType(),
		Payload:   data,
	})
}

// CanQueue reports whether an outbox is configured
func (s *SubmissionService) CanQueue() bool {
	return s.outbox != nil
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
