package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"spese-cli/internal/log"

	_ "modernc.org/sqlite"
)

// Upload statuses stored in pending_uploads.status
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSubmitted  = "submitted"
	StatusFailed     = "failed"
)

var (
	ErrNotFound     = errors.New("pending upload not found")
	ErrNotPending   = errors.New("pending upload already claimed")
	ErrEmptyPayload = errors.New("empty upload payload")
)

// Upload is the input for Enqueue
type Upload struct {
	SessionID string
	FileName  string
	MIMEType  string
	Payload   []byte
}

// PendingUpload is a queued upload. Payload is only populated by Get and
// DequeueBatch.
type PendingUpload struct {
	ID        string
	SessionID string
	FileName  string
	MIMEType  string
	Payload   []byte
	Size      int64
	Status    string
	Attempts  int
	LastError string
	ExpenseID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats counts uploads by status
type Stats struct {
	Pending    int64
	Processing int64
	Submitted  int64
	Failed     int64
}

func (s Stats) Total() int64 {
	return s.Pending + s.Processing + s.Submitted + s.Failed
}

// Outbox is the local SQLite queue of uploads that could not reach the backend
type Outbox struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
	logger  *log.Logger
}

type Option func(*Outbox)

func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(o *Outbox) { o.logger = l }
}

// Open opens (creating if needed) the outbox database and migrates it
func Open(dbPath string, opts ...Option) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations first, the migrator needs exclusive access
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	o := &Outbox{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.Discard()
	}
	o.logger = o.logger.WithComponent(log.ComponentStorage)
	return o, nil
}

func (o *Outbox) Close() error {
	if o.db != nil {
		return o.db.Close()
	}
	return nil
}

func (o *Outbox) stamp() int64 {
	return o.now().UnixMilli()
}

// Enqueue stores an upload for later delivery
func (o *Outbox) Enqueue(ctx context.Context, u Upload) (PendingUpload, error) {
	if len(u.Payload) == 0 {
		return PendingUpload{}, ErrEmptyPayload
	}
	id := uuid.NewString()
	err := o.queries.InsertPendingUpload(ctx, InsertPendingUploadParams{
		ID:        id,
		SessionID: u.SessionID,
		FileName:  u.FileName,
		MimeType:  u.MIMEType,
		Payload:   u.Payload,
		CreatedAt: o.stamp(),
	})
	if err != nil {
		return PendingUpload{}, fmt.Errorf("insert pending upload: %w", err)
	}

	o.logger.InfoContext(ctx, "Upload queued in outbox",
		log.FieldOutboxID, id,
		log.FieldSessionID, u.SessionID,
		log.FieldMIMEType, u.MIMEType,
		log.FieldBytes, len(u.Payload))

	return o.Get(ctx, id)
}

func (o *Outbox) Get(ctx context.Context, id string) (PendingUpload, error) {
	row, err := o.queries.GetPendingUpload(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingUpload{}, ErrNotFound
	}
	if err != nil {
		return PendingUpload{}, fmt.Errorf("get pending upload: %w", err)
	}
	return fromRow(row), nil
}

// DequeueBatch returns up to limit pending uploads, oldest first. Items are
// not claimed; call MarkProcessing before delivering one.
func (o *Outbox) DequeueBatch(ctx context.Context, limit int) ([]PendingUpload, error) {
	rows, err := o.queries.ListPendingForProcessing(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending uploads: %w", err)
	}
	return fromRows(rows), nil
}

// List returns uploads in status (all when empty), newest first, without payloads
func (o *Outbox) List(ctx context.Context, status string, limit int) ([]PendingUpload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.queries.ListByStatus(ctx, strings.ToLower(status), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return fromRows(rows), nil
}

// MarkProcessing claims a pending upload
func (o *Outbox) MarkProcessing(ctx context.Context, id string) error {
	n, err := o.queries.ClaimPendingUpload(ctx, id, o.stamp())
	if err != nil {
		return fmt.Errorf("claim pending upload: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkSubmitted records the created expense and drops the payload
func (o *Outbox) MarkSubmitted(ctx context.Context, id string, expenseID int64) error {
	n, err := o.queries.MarkSubmitted(ctx, id, expenseID, o.stamp())
	if err != nil {
		return fmt.Errorf("mark upload submitted: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	o.logger.InfoContext(ctx, "Outbox upload submitted",
		log.FieldOutboxID, id,
		log.FieldExpenseID, expenseID)
	return nil
}

// RecordFailure counts a failed attempt. The upload goes back to pending
// until maxAttempts is reached, then it is failed. It returns the attempt
// count and whether the upload is now failed.
func (o *Outbox) RecordFailure(ctx context.Context, id string, cause error, maxAttempts int) (int, bool, error) {
	attempts, status, err := o.queries.RecordAttemptFailure(ctx, id, errorText(cause), int64(maxAttempts), o.stamp())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record upload failure: %w", err)
	}

	failed := status == StatusFailed
	o.logger.WarnContext(ctx, "Outbox upload attempt failed",
		log.FieldOutboxID, id,
		log.FieldAttempt, attempts,
		"final", failed,
		log.FieldError, cause)
	return int(attempts), failed, nil
}

// MarkFailed fails an upload immediately, e.g. when the backend rejected it
func (o *Outbox) MarkFailed(ctx context.Context, id string, cause error) error {
	n, err := o.queries.MarkFailed(ctx, id, errorText(cause), o.stamp())
	if err != nil {
		return fmt.Errorf("mark upload failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	o.logger.WarnContext(ctx, "Outbox upload rejected",
		log.FieldOutboxID, id,
		log.FieldError, cause)
	return nil
}

// ResetStaleProcessing returns uploads stuck in processing for longer than
// olderThan to pending, e.g. after a crash mid-delivery
func (o *Outbox) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := o.now()
	n, err := o.queries.ResetStaleProcessing(ctx, now.UnixMilli(), now.Add(-olderThan).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("reset stale uploads: %w", err)
	}
	if n > 0 {
		o.logger.WarnContext(ctx, "Reset stale outbox uploads", "count", n)
	}
	return n, nil
}

// RetryFailed moves failed uploads back to pending with a fresh attempt count
func (o *Outbox) RetryFailed(ctx context.Context) (int64, error) {
	n, err := o.queries.RetryFailed(ctx, o.stamp())
	if err != nil {
		return 0, fmt.Errorf("retry failed uploads: %w", err)
	}
	return n, nil
}

// CleanupSubmitted deletes submitted uploads older than olderThan
func (o *Outbox) CleanupSubmitted(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := o.queries.DeleteSubmittedBefore(ctx, o.now().Add(-olderThan).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup submitted uploads: %w", err)
	}
	return n, nil
}

func (o *Outbox) Delete(ctx context.Context, id string) error {
	n, err := o.queries.DeletePendingUpload(ctx, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	counts, err := o.queries.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count uploads: %w", err)
	}
	return Stats{
		Pending:    counts[StatusPending],
		Processing: counts[StatusProcessing],
		Submitted:  counts[StatusSubmitted],
		Failed:     counts[StatusFailed],
	}, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func fromRow(r pendingUploadRow) PendingUpload {
	return PendingUpload{
		ID:        r.ID,
		SessionID: r.SessionID,
		FileName:  r.FileName,
		MIMEType:  r.MimeType,
		Payload:   r.Payload,
		Size:      r.Size,
		Status:    r.Status,
		Attempts:  int(r.Attempts),
		LastError: r.LastError,
		ExpenseID: r.ExpenseID.Int64,
		CreatedAt: time.UnixMilli(r.CreatedAt),
		UpdatedAt: time.UnixMilli(r.UpdatedAt),
	}
}

func fromRows(rows []pendingUploadRow) []PendingUpload {
	out := make([]PendingUpload, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out
}
