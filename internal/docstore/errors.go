// Package docstore provides clients for remote file-search document stores:
// a REST client for the Gemini File Search API with automatic retry and
// error classification, and an S3-compatible implementation on MinIO.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for status classification.
// Use errors.Is(err, docstore.ErrNotFound) to check.
var (
	ErrBadRequest      = errors.New("docstore: bad request")
	ErrUnauthorized    = errors.New("docstore: unauthorized")
	ErrForbidden       = errors.New("docstore: forbidden")
	ErrNotFound        = errors.New("docstore: not found")
	ErrConflict        = errors.New("docstore: conflict")
	ErrThrottled       = errors.New("docstore: throttled")
	ErrServerError     = errors.New("docstore: server error")
	ErrStoreNotEmpty   = errors.New("docstore: store is not empty")
	ErrOperationFailed = errors.New("docstore: operation failed")
	ErrUnsupported     = errors.New("docstore: operation not supported by backend")
)

// StoreError wraps a sentinel error with the HTTP status code, the API's
// symbolic status (e.g. RESOURCE_EXHAUSTED), and the error message.
type StoreError struct {
	StatusCode int
	Status     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *StoreError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("docstore: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
	}

	return fmt.Sprintf("docstore: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// apiErrorBody is the Google API error envelope.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// newStoreError builds a StoreError from a non-2xx response body.
func newStoreError(code int, body []byte) *StoreError {
	se := &StoreError{StatusCode: code, Message: strings.TrimSpace(string(body))}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		se.Message = parsed.Error.Message
		se.Status = parsed.Error.Status
	}

	se.Err = classify(code, se.Status, se.Message)

	return se
}

// classify maps a status code, plus the symbolic status and message, to a
// sentinel error. Returns nil for 2xx success codes.
func classify(code int, status, message string) error {
	if isNotEmptyMessage(message) {
		return ErrStoreNotEmpty
	}

	if status == "RESOURCE_EXHAUSTED" {
		return ErrThrottled
	}

	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isNotEmptyMessage recognizes the backend's refusal to delete a store that
// still lists documents.
func isNotEmptyMessage(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "non-empty") || strings.Contains(m, "not empty")
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err means the target is already gone. Delete
// paths treat this as success.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
