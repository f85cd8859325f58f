package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from m3u8grab components.
type ErrorType string

const (
	// DownloadError represents the aggregate failure of a playlist download: at least
	// one segment could not be fetched after all retries.
	DownloadError ErrorType = "download_error"
	// ValidationError represents errors caused by invalid input parameters or configuration.
	ValidationError ErrorType = "validation_error"
	// SystemError represents underlying system issues, such as file I/O errors or
	// command execution problems (excluding a failed remux, see AssembleError).
	SystemError ErrorType = "system_error"
)

// StructuredError represents a detailed error originating from m3u8grab operations.
// It includes a type, message, optional details, timestamp, and a specific error code,
// plus optional segment and task context.
// It implements the standard Go `error` interface and unwraps to its cause.
type StructuredError struct {
	// Type categorizes the error (e.g., HTTPError, DecryptionError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code, see error_codes.go.
	Code int `json:"code"`
	// Position is the manifest position of the segment involved, if any.
	Position *int `json:"position,omitempty"`
	// Attempts is the number of retries performed before giving up.
	Attempts int `json:"attempts,omitempty"`
	// Task names the download task the error belongs to.
	Task string `json:"task,omitempty"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Task != "" {
		prefix += fmt.Sprintf(" task %q", e.Task)
	}
	if e.Position != nil {
		prefix += fmt.Sprintf(" segment %d", *e.Position)
	}
	if e.Details == "" {
		return fmt.Sprintf("%s %s", prefix, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", prefix, e.Message, e.Details)
}

// Unwrap returns the error this one was created from, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WithPosition attaches the segment position and returns the same error.
func (e *StructuredError) WithPosition(position int) *StructuredError {
	e.Position = &position
	return e
}

// WithAttempts records how many retries were spent.
func (e *StructuredError) WithAttempts(attempts int) *StructuredError {
	e.Attempts = attempts
	return e
}

// WithTask records the task name.
func (e *StructuredError) WithTask(name string) *StructuredError {
	e.Task = name
	return e
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// Wrap creates a new StructuredError, using the message from an existing standard Go error
// as the Details field. The original error stays reachable through errors.Unwrap.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	e := New(errorType, message, details, code)
	e.cause = err
	return e
}

// Is reports whether any StructuredError in err's chain has the given type.
func Is(err error, errorType ErrorType) bool {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Type == errorType {
			return true
		}
		err = se.cause
	}
	return false
}

// TypeOf returns the type of the outermost StructuredError in err's chain,
// or an empty ErrorType when there is none.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// PositionOf returns the first segment position found in err's chain.
func PositionOf(err error) (int, bool) {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return 0, false
		}
		if se.Position != nil {
			return *se.Position, true
		}
		err = se.cause
	}
	return 0, false
}
