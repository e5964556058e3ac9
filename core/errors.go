package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared between server responses and client normalization.
const (
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeVideoTooLarge  = "VIDEO_TOO_LARGE"
	CodeNotFound       = "NOT_FOUND"
	CodeNotComplete    = "PROCESSING_NOT_COMPLETE"
	CodeValidation     = "VALIDATION_ERROR"
	CodeNetwork        = "NETWORK_ERROR"
	CodeReportFailed   = "REPORT_GENERATION_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUploadRejected = "UPLOAD_REJECTED"
	CodeUnauthorized   = "UNAUTHORIZED"
)

// APIError is the wire shape every failure is normalized into:
// a user-facing message, a machine code, and whether a retry is sensible.
type APIError struct {
	Message   string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError is a client-side rejection; it never reaches the network.
func NewValidationError(msg string) *APIError {
	return &APIError{Message: msg, Code: CodeValidation, Retryable: false}
}

// NewNetworkError wraps a transport failure. Transport failures are always
// retryable: the request may never have reached the server.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Message:   fmt.Sprintf("Network error: %v", err),
		Code:      CodeNetwork,
		Retryable: true,
	}
}

// NewReportError marks a failure of the document-export call.
func NewReportError(msg string) *APIError {
	return &APIError{Message: msg, Code: CodeReportFailed, Retryable: true}
}

// DecodeAPIError normalizes a non-2xx response body into an APIError. A
// well-formed {error, code, retryable} body is honored as-is; anything else
// becomes a generic error with retryable inferred from the status class
// (>=500 means the server may recover, so retry is sensible).
func DecodeAPIError(status int, body []byte) *APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" && apiErr.Code != "" {
		return &apiErr
	}
	// FastAPI-style {"detail": {...}} nesting from older backend builds.
	var wrapped struct {
		Detail APIError `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Detail.Message != "" {
		return &wrapped.Detail
	}
	return &APIError{
		Message:   fmt.Sprintf("Request failed with status %d", status),
		Code:      CodeInternal,
		Retryable: status >= http.StatusInternalServerError,
	}
}

// AsAPIError extracts an *APIError from err, normalizing unknown errors into
// the network category.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewNetworkError(err)
}
