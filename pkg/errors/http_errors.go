package errors

import (
	"net/http"
)

// Error codes shared by the HTTP handlers.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	CodeStorage      = "STORAGE_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
	CodePanic        = "SERVER_ERROR"
)

func NewBadRequestError(code, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

func NewUnauthorizedError(code, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

func NewNotFoundError(code, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

func NewConflictError(code, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

func NewTooManyRequestsError(code, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

func NewInternalServerError(code, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// Validation builds the 400 used for rejected input; message is shown verbatim.
func Validation(message string) *AppError {
	return NewBadRequestError(CodeValidation, message)
}

// BadRequestWithDetails is a 400 with machine-readable details
func BadRequestWithDetails(code, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// Storage builds the 500 used when persistence fails.
func Storage(message string, cause error) *AppError {
	return NewInternalServerError(CodeStorage, message).WithCause(cause)
}
