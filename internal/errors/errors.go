package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Chunkwise error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"        // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"              // 404
	ErrAlreadyExists   ErrorCode = "ALREADY_EXISTS"         // 409
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND"         // 404
	ErrConfiguration   ErrorCode = "CONFIGURATION_ERROR"    // 500
	ErrStorage         ErrorCode = "STORAGE_ERROR"          // 500
	ErrExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR" // 502
	ErrCancelled       ErrorCode = "CANCELLED"              // 499
	ErrInternal        ErrorCode = "INTERNAL"               // 500
)

// ChunkwiseError represents a structured error with code, status, and details.
type ChunkwiseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. Not exposed to clients.
	Err error
}

// Error implements the error interface.
func (e *ChunkwiseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChunkwiseError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a chat import cannot be found.
func NewNotFound(name string) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("chat not found: %s", name),
		Details: map[string]any{"name": name},
	}
}

// NewAlreadyExists creates a 409 error for import name collisions.
func NewAlreadyExists(name string) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("chat %q already imported", name),
		Details: map[string]any{"name": name},
	}
}

// NewFileNotFound creates a 404 error for a missing export file.
func NewFileNotFound(path string) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConfiguration creates an error for a missing or invalid setting.
func NewConfiguration(setting, msg string) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrConfiguration,
		Status:  500,
		Message: fmt.Sprintf("%s: %s", setting, msg),
		Details: map[string]any{"setting": setting},
	}
}

// NewStorage creates an error for a cache or library I/O failure.
// An index below zero means the failure concerns the whole partition.
func NewStorage(conversation string, index int, err error) *ChunkwiseError {
	details := map[string]any{"conversation": conversation}
	msg := fmt.Sprintf("storage failure for %q", conversation)
	if index >= 0 {
		details["index"] = index
		msg = fmt.Sprintf("storage failure for %q index %d", conversation, index)
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return &ChunkwiseError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Details: details,
		Err:     err,
	}
}

// NewExternalService creates a 502 error for analysis service faults.
// Status is the upstream HTTP status, or 0 when no response was received.
func NewExternalService(status int, detail string) *ChunkwiseError {
	msg := detail
	if status != 0 {
		msg = fmt.Sprintf("analysis service returned %d: %s", status, detail)
	}
	return &ChunkwiseError{
		Code:    ErrExternalService,
		Status:  502,
		Message: msg,
		Details: map[string]any{"status": status, "detail": detail},
	}
}

// NewCancelled creates a 499 error for an operation stopped by its context.
// err is the context error, so errors.Is(err, context.Canceled) still holds.
func NewCancelled(op string, err error) *ChunkwiseError {
	return &ChunkwiseError{
		Code:    ErrCancelled,
		Status:  499,
		Message: op + " cancelled",
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *ChunkwiseError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &ChunkwiseError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// As returns the ChunkwiseError in err's chain, if any.
func As(err error) (*ChunkwiseError, bool) {
	var cErr *ChunkwiseError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

// WithDetail sets key in the details of the ChunkwiseError in err's chain
// and returns err. Other errors are returned unchanged.
func WithDetail(err error, key string, value any) error {
	cErr, ok := As(err)
	if !ok {
		return err
	}
	if cErr.Details == nil {
		cErr.Details = make(map[string]any)
	}
	cErr.Details[key] = value
	return err
}

// Is checks if an error is (or wraps) a ChunkwiseError with the given code.
func Is(err error, code ErrorCode) bool {
	if cErr, ok := As(err); ok {
		return cErr.Code == code
	}
	return false
}
