package backend

import (
	"context"
	"time"

	"spese-cli/internal/amqp"
	"spese-cli/internal/api"
	"spese-cli/internal/storage"
)

// Backend is everything the client needs from the expense server
type Backend interface {
	api.Gateway
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and the optional local
// collaborators opened with it. Outbox and Publisher are nil when disabled.
type BackendResult struct {
	Backend   Backend
	Outbox    *storage.Outbox
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// HTTP specific
	APIBaseURL     string
	APIToken       string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	// Memory backend specific
	DataDirectory string

	// Optional for every backend
	OutboxDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	HTTPBackend   BackendType = "http"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case HTTPBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
