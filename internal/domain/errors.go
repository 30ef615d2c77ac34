package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across the pipeline.
var (
	ErrInferenceUnavailable     = errors.New("inference engine unavailable")
	ErrConfigurationMissing     = errors.New("backend not configured")
	ErrPersistenceFailure       = errors.New("persistence failed")
	ErrKnowledgeBaseUnavailable = errors.New("knowledge base unavailable")
	ErrNotFound                 = errors.New("not found")
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"error"`
	Field     string    `json:"field,omitempty"`
	Details   string    `json:"traceback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeKnowledgeBase = "KNOWLEDGE_BASE_ERROR"
	ErrCodeInternal      = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
