// Package errors provides the coded error taxonomy for the research
// pipeline. Codes classify failures into infrastructure, generation,
// validation, session and system categories and decide retryability.
package errors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// Infrastructure errors (1xxx)
	ErrConnectionFailed  = "CHR-1001" // Network connectivity issues
	ErrTimeout           = "CHR-1002" // Operation timeout
	ErrRateLimit         = "CHR-1003" // Rate limit exceeded
	ErrSearchUnavailable = "CHR-1004" // Search capability down

	// Generation errors (2xxx)
	ErrGenerationFailed = "CHR-2001" // Model call failed
	ErrSchemaDecode     = "CHR-2002" // Output did not match the schema
	ErrBudgetExhausted  = "CHR-2003" // Per-call request budget spent

	// Validation errors (3xxx)
	ErrInvalidInput    = "CHR-3001" // Invalid parameters
	ErrMissingRequired = "CHR-3002" // Missing required field

	// Session errors (4xxx)
	ErrSessionNotFound = "CHR-4001" // Unknown session id
	ErrSessionState    = "CHR-4002" // Session already started or finished
	ErrStoreFailed     = "CHR-4003" // Persistence operation failed

	// System errors (5xxx)
	ErrInternal = "CHR-5001" // Unexpected internal error
)

// ResearchError is an error with a taxonomy code and correlation id.
type ResearchError struct {
	Code          string        `json:"code"`
	Category      ErrorCategory `json:"category"`
	Message       string        `json:"message"`
	Retryable     bool          `json:"retryable"`
	CorrelationID string        `json:"correlation_id"`
	Timestamp     time.Time     `json:"timestamp"`
	cause         error
}

// Error implements the error interface
func (e *ResearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *ResearchError) Unwrap() error {
	return e.cause
}

// ShouldRetry determines if the error is retryable
func (e *ResearchError) ShouldRetry() bool {
	return e.Retryable
}

// New creates a new ResearchError with the given code.
func New(code, message string) *ResearchError {
	return &ResearchError{
		Code:          code,
		Category:      categoryFromCode(code),
		Message:       message,
		Retryable:     isRetryableCode(code),
		CorrelationID: uuid.New().String(),
		Timestamp:     time.Now(),
	}
}

// Wrap wraps an existing error under a taxonomy code.
func Wrap(err error, code string) *ResearchError {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(*ResearchError); ok {
		return rerr
	}
	re := New(code, err.Error())
	re.cause = err
	return re
}

// categoryFromCode determines category from the code's series digit.
func categoryFromCode(code string) ErrorCategory {
	if len(code) < 5 {
		return ErrorCategory("unknown")
	}
	switch code[4:5] {
	case "1":
		return ErrorCategory("infrastructure")
	case "2":
		return ErrorCategory("generation")
	case "3":
		return ErrorCategory("validation")
	case "4":
		return ErrorCategory("session")
	case "5":
		return ErrorCategory("system")
	default:
		return ErrorCategory("unknown")
	}
}

// isRetryableCode determines if an error code is retryable
func isRetryableCode(code string) bool {
	switch code {
	case ErrConnectionFailed, ErrTimeout, ErrRateLimit, ErrSearchUnavailable, ErrGenerationFailed:
		return true
	default:
		return false
	}
}
