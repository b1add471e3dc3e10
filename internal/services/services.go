// Package services orchestrates uploads, the offline outbox and
// submission notifications around the backend gateway.
package services

import (
	"context"
	"errors"
	"io"

	"spese-cli/internal/amqp"
	"spese-cli/internal/storage"
)

var ErrOutboxDisabled = errors.New("offline outbox is not configured")

// Publisher announces accepted expenses
type Publisher interface {
	PublishExpenseSubmitted(ctx context.Context, msg *amqp.ExpenseSubmittedMessage) error
}

// Queue stores uploads that could not be delivered
type Queue interface {
	Enqueue(ctx context.Context, u storage.Upload) (storage.PendingUpload, error)
}

// queuedFile replays an outbox item as an upload
type queuedFile struct {
	item storage.PendingUpload
}

func (f queuedFile) Name() string      { return f.item.FileName }
func (f queuedFile) MIMEType() string  { return f.item.MIMEType }
func (f queuedFile) Reader() io.Reader { return bytesReader(f.item.Payload) }
