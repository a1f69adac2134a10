package model

import "fmt"

// ErrorCode classifies API errors returned by the stagehand server.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrTransfer   ErrorCode = "TRANSFER_FAILED"
	ErrAuth       ErrorCode = "AUTHENTICATION_REQUIRED"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is the structured error envelope served by the HTTP API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a VALIDATION_ERROR.
func NewValidationError(format string, args ...any) *APIError {
	return &APIError{Code: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError creates a NOT_FOUND error for a resource.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}
