package api

import (
	"context"

	"github.com/google/uuid"
)

// HeaderRequestID carries the correlation ID of a call
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID attaches a correlation ID to calls made with ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the correlation ID in ctx, if any
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewRequestID generates a correlation ID
func NewRequestID() string {
	return uuid.NewString()
}

type sessionIDKey struct{}

// WithSessionID tags ctx with the recording session that issued a call
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
