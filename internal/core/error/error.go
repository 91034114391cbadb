package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a key does not exist.
	RedisNotFoundMessage = "redis key not found"
	// LoadErrorMessage describes a failed CRM data load.
	LoadErrorMessage = "failed to load CRM data"
	// ModelErrorMessage is shown to chat users when the reasoning service fails.
	ModelErrorMessage = "Failed to get a response. Please try again."
	// BadRequestMessage is shown when a chat request has no usable messages.
	BadRequestMessage = "No messages provided"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapLoad marks err as a fatal data load failure.
func WrapLoad(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusInternalServerError, LoadErrorMessage)
}

// WrapModel wraps a failure of the external reasoning service.
func WrapModel(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}

// BadRequest builds a 400 error carrying message as the safe text.
func BadRequest(err error, message string) *AppError {
	return New(err, http.StatusBadRequest, message)
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Resolve returns the HTTP status and the user-safe message for err.
// Errors that are not AppErrors map to 500 with SystemErrorMessage.
func Resolve(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, appErr.Message
	}
	return http.StatusInternalServerError, SystemErrorMessage
}
