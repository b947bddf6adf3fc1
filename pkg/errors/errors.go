// Package errors carries HTTP-facing application errors from services to the
// gin error middleware, which renders them as the JSON error envelope.
package errors

import (
	stderrors "errors"
	"net/http"
)

// AppError is an error with a client-safe message and a stable code.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.cause }

// Is matches any AppError with the same code, so codes work as sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e carrying details
func (e *AppError) WithDetails(details any) *AppError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of e wrapping err; the cause is logged, never rendered
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.cause = err
	return &c
}

// Body is the JSON envelope sent to clients. The top-level message mirrors
// error.message for callers that only read one field.
func (e *AppError) Body() map[string]any {
	return map[string]any{
		"message": e.Message,
		"error":   e,
	}
}

// NewError creates an application error
func NewError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// FromError converts any error into an AppError. Unknown errors become a
// generic 500 so internals never reach the client.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return NewError(http.StatusRequestEntityTooLarge, CodeValidation, "Request body too large").WithCause(err)
	}
	return NewInternalServerError(CodeInternal, "Internal server error").WithCause(err)
}
