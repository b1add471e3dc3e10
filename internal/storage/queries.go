package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// pendingUploadRow mirrors a pending_uploads row
type pendingUploadRow struct {
	ID        string
	SessionID string
	FileName  string
	MimeType  string
	Payload   []byte
	Size      int64
	Status    string
	Attempts  int64
	LastError string
	ExpenseID sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

const insertPendingUpload = `-- name: InsertPendingUpload :exec
INSERT INTO pending_uploads (id, session_id, file_name, mime_type, payload, status, attempts, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 'pending', 0, '', ?, ?)
`

type InsertPendingUploadParams struct {
	ID        string
	SessionID string
	FileName  string
	MimeType  string
	Payload   []byte
	CreatedAt int64
}

func (q *Queries) InsertPendingUpload(ctx context.Context, arg InsertPendingUploadParams) error {
	_, err := q.db.ExecContext(ctx, insertPendingUpload,
		arg.ID,
		arg.SessionID,
		arg.FileName,
		arg.MimeType,
		arg.Payload,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const selectColumns = `id, session_id, file_name, mime_type, payload, length(payload), status, attempts, last_error, expense_id, created_at, updated_at`

const listColumns = `id, session_id, file_name, mime_type, NULL, length(payload), status, attempts, last_error, expense_id, created_at, updated_at`

const getPendingUpload = `-- name: GetPendingUpload :one
SELECT ` + selectColumns + ` FROM pending_uploads WHERE id = ?
`

func (q *Queries) GetPendingUpload(ctx context.Context, id string) (pendingUploadRow, error) {
	row := q.db.QueryRowContext(ctx, getPendingUpload, id)
	return scanPendingUpload(row)
}

const listPendingForProcessing = `-- name: ListPendingForProcessing :many
SELECT ` + selectColumns + ` FROM pending_uploads
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC
LIMIT ?
`

func (q *Queries) ListPendingForProcessing(ctx context.Context, limit int64) ([]pendingUploadRow, error) {
	return q.queryRows(ctx, listPendingForProcessing, limit)
}

const listByStatus = `-- name: ListByStatus :many
SELECT ` + listColumns + ` FROM pending_uploads
WHERE (? = '' OR status = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListByStatus(ctx context.Context, status string, limit int64) ([]pendingUploadRow, error) {
	return q.queryRows(ctx, listByStatus, status, status, limit)
}

const claimPendingUpload = `-- name: ClaimPendingUpload :execrows
UPDATE pending_uploads SET status = 'processing', updated_at = ?
WHERE id = ? AND status = 'pending'
`

func (q *Queries) ClaimPendingUpload(ctx context.Context, id string, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimPendingUpload, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSubmitted = `-- name: MarkSubmitted :execrows
UPDATE pending_uploads SET status = 'submitted', expense_id = ?, last_error = '', payload = x'', updated_at = ?
WHERE id = ?
`

func (q *Queries) MarkSubmitted(ctx context.Context, id string, expenseID, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSubmitted, expenseID, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const recordAttemptFailure = `-- name: RecordAttemptFailure :one
UPDATE pending_uploads
SET attempts = attempts + 1,
    last_error = ?,
    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
    updated_at = ?
WHERE id = ?
RETURNING attempts, status
`

func (q *Queries) RecordAttemptFailure(ctx context.Context, id, lastError string, maxAttempts, now int64) (int64, string, error) {
	var attempts int64
	var status string
	err := q.db.QueryRowContext(ctx, recordAttemptFailure, lastError, maxAttempts, now, id).Scan(&attempts, &status)
	return attempts, status, err
}

const markFailed = `-- name: MarkFailed :execrows
UPDATE pending_uploads SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) MarkFailed(ctx context.Context, id, lastError string, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markFailed, lastError, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const resetStaleProcessing = `-- name: ResetStaleProcessing :execrows
UPDATE pending_uploads SET status = 'pending', updated_at = ?
WHERE status = 'processing' AND updated_at < ?
`

func (q *Queries) ResetStaleProcessing(ctx context.Context, now, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetStaleProcessing, now, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const retryFailed = `-- name: RetryFailed :execrows
UPDATE pending_uploads SET status = 'pending', attempts = 0, updated_at = ?
WHERE status = 'failed' AND length(payload) > 0
`

func (q *Queries) RetryFailed(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, retryFailed, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSubmittedBefore = `-- name: DeleteSubmittedBefore :execrows
DELETE FROM pending_uploads WHERE status = 'submitted' AND updated_at < ?
`

func (q *Queries) DeleteSubmittedBefore(ctx context.Context, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSubmittedBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deletePendingUpload = `-- name: DeletePendingUpload :execrows
DELETE FROM pending_uploads WHERE id = ?
`

func (q *Queries) DeletePendingUpload(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePendingUpload, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countByStatus = `-- name: CountByStatus :many
SELECT status, COUNT(*) FROM pending_uploads GROUP BY status
`

func (q *Queries) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (q *Queries) queryRows(ctx context.Context, query string, args ...interface{}) ([]pendingUploadRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []pendingUploadRow
	for rows.Next() {
		i, err := scanPendingUpload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingUpload(s scanner) (pendingUploadRow, error) {
	var i pendingUploadRow
	var size sql.NullInt64
	err := s.Scan(
		&i.ID,
		&i.SessionID,
		&i.FileName,
		&i.MimeType,
		&i.Payload,
		&size,
		&i.Status,
		&i.Attempts,
		&i.LastError,
		&i.ExpenseID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.Size = size.Int64
	return i, err
}
