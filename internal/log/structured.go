package log

import (
	"context"
	"log/slog"
)

// StructuredLogger provides domain-specific logging helpers
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	if logger == nil {
		logger = Discard()
	}
	return &StructuredLogger{
		logger: logger,
	}
}

// LogAPICall logs a completed backend call. Client errors are warnings,
// server errors are errors.
func (sl *StructuredLogger) LogAPICall(ctx context.Context, method, path, requestID string, statusCode int, durationMs int64) {
	level := slog.LevelDebug
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithAPIRequest(method, path).
		WithAPIResponse(statusCode, durationMs, statusCode < 400).
		WithRequestID(requestID)

	sl.logger.Log(ctx, level, "API request completed", fields.ToSlice()...)
}

// LogAPIFailure logs a call that produced no response at all
func (sl *StructuredLogger) LogAPIFailure(ctx context.Context, method, path, requestID string, err error) {
	fields := NewFields().
		WithAPIRequest(method, path).
		WithRequestID(requestID).
		WithErrorType(ErrorTypeNetwork).
		WithError(err)

	sl.logger.WarnContext(ctx, "API request failed without response", fields.ToSlice()...)
}

// LogTransition logs a session state change
func (sl *StructuredLogger) LogTransition(ctx context.Context, sessionID, from, to string) {
	fields := NewFields().
		WithSession(sessionID).
		WithTransition(from, to)

	sl.logger.DebugContext(ctx, "Session transition", fields.ToSlice()...)
}

// LogExpenseSubmitted logs a successful upload
func (sl *StructuredLogger) LogExpenseSubmitted(ctx context.Context, sessionID string, id int64, desc, amount, category, subcategory string) {
	fields := NewFields().
		WithSession(sessionID).
		WithExpense(id, desc, amount, category, subcategory).
		WithOperation(OpUpload)

	sl.logger.InfoContext(ctx, "Expense submitted successfully", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}

// Logger returns the wrapped logger
func (sl *StructuredLogger) Logger() *Logger {
	return sl.logger
}
