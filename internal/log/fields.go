package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldSessionID   = "session_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldFromStatus  = "from"
	FieldToStatus    = "to"
	FieldMIMEType    = "mime_type"
	FieldBytes       = "bytes"
	FieldExpenseID   = "expense_id"
	FieldExpenseDesc = "expense_description"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldCategoryID  = "category_id"
	FieldOutboxID    = "outbox_id"
	FieldAttempt     = "attempt"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentAPI      = "api"
	ComponentCapture  = "capture"
	ComponentWaveform = "waveform"
	ComponentPlayback = "playback"
	ComponentSession  = "session"
	ComponentCatalog  = "catalog"
	ComponentExpenses = "expenses"
	ComponentStorage  = "storage"
	ComponentOutbox   = "outbox"
	ComponentAMQP     = "amqp"
	ComponentCache    = "cache"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpUpload   = "upload"
	OpRecord   = "record"
	OpPlay     = "play"
	OpDiscard  = "discard"
	OpEnqueue  = "enqueue"
	OpDrain    = "drain"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypePermission    = "permission_error"
	ErrorTypeDevice        = "device_error"
	ErrorTypeUnprocessable = "unprocessable_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeServer        = "server_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

// WithSession adds the recording session ID
func (f LogFields) WithSession(sessionID string) LogFields {
	f[FieldSessionID] = sessionID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType tags the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransition adds the from/to states of a state machine step
func (f LogFields) WithTransition(from, to string) LogFields {
	f[FieldFromStatus] = from
	f[FieldToStatus] = to
	return f
}

// WithArtifact adds the payload description of an audio or image artifact
func (f LogFields) WithArtifact(mimeType string, size int) LogFields {
	f[FieldMIMEType] = mimeType
	f[FieldBytes] = size
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id int64, desc, amount, category, subcategory string) LogFields {
	f[FieldExpenseID] = id
	f[FieldExpenseDesc] = desc
	f[FieldAmount] = amount
	f[FieldCategory] = category
	f[FieldSubcategory] = subcategory
	return f
}

// WithAPIRequest adds outbound request fields
func (f LogFields) WithAPIRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

// WithAPIResponse adds outbound response fields
func (f LogFields) WithAPIResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
