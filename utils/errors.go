package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorKind classifies pipeline failures by behavior, not by type. The task
// runner uses the kind at a single boundary to decide retry vs. terminal
// failure.
type ErrorKind int

const (
	KindTransientExternal ErrorKind = iota
	KindRateLimit
	KindValidation
	KindAuthorization
	KindIntegrity
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientExternal:
		return "transient_external"
	case KindRateLimit:
		return "rate_limit"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindIntegrity:
		return "integrity"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Stable error codes surfaced to the ledger and API.
const (
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInvalidPDF      = "INVALID_PDF_FORMAT"
	CodeEmptyFile       = "EMPTY_FILE"
	CodeEmptyDocument   = "EMPTY_DOCUMENT"
	CodeOversizePDF     = "OVERSIZE_PDF"
	CodeIntegrity       = "INTEGRITY_ERROR"
	CodeCancelled       = "CANCELLED"
	CodeWorkerTimeout   = "worker_timeout"
)

// PipelineError is the typed error raised by stage functions.
type PipelineError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retryable reports whether the broker should redeliver the task.
func (e *PipelineError) Retryable() bool {
	return e.Kind == KindTransientExternal || e.Kind == KindRateLimit
}

func NewTransient(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindTransientExternal, Code: CodeExternalService, Message: message, Err: err}
}

func NewRateLimit(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindRateLimit, Code: CodeRateLimited, Message: message, Err: err}
}

func NewValidation(code, message string) *PipelineError {
	return &PipelineError{Kind: KindValidation, Code: code, Message: message}
}

func NewIntegrity(message string) *PipelineError {
	return &PipelineError{Kind: KindIntegrity, Code: CodeIntegrity, Message: message}
}

func NewCancelled(message string) *PipelineError {
	return &PipelineError{Kind: KindCancelled, Code: CodeCancelled, Message: message}
}

// Classify extracts the kind from an error chain. Unclassified errors are
// treated as transient so the broker retries them within its cap.
func Classify(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransientExternal
}

// IsRetryable reports whether an error chain should be redelivered.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// ErrorCodeOf returns the stable code for an error chain, defaulting to the
// external-service code for unclassified errors.
func ErrorCodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeExternalService
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithUnauthorized sends a 401 Unauthorized error
func RespondWithUnauthorized(c *gin.Context, message string) {
	RespondWithError(c, http.StatusUnauthorized, "unauthorized", message, nil)
}

// RespondWithForbidden sends a 403 Forbidden error
func RespondWithForbidden(c *gin.Context, message string) {
	RespondWithError(c, http.StatusForbidden, "forbidden", message, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}
