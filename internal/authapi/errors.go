package authapi

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/schooldesk/portal/pkg/errors"
)

// ErrIncompleteResponse marks a 2xx answer missing a required field.
var ErrIncompleteResponse = fmt.Errorf("incomplete response: %w", apperrors.ErrInternal)

// APIError is a rejection from the auth backend. Error() is the message the
// backend meant for the user; errors.Is classifies it against the
// pkg/errors taxonomy.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// newAPIError classifies a non-2xx status.
func newAPIError(operation string, status int, message string) *APIError {
	if message == "" {
		message = defaultMessage(status)
	}
	return &APIError{
		Operation:  operation,
		StatusCode: status,
		Message:    message,
		kind:       kindForStatus(status),
	}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.ErrUnauthorized
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.ErrInvalidInput
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperrors.ErrTimeout
	default:
		return apperrors.ErrNetwork
	}
}

func defaultMessage(status int) string {
	switch kindForStatus(status) {
	case apperrors.ErrUnauthorized:
		return "Invalid credentials"
	case apperrors.ErrInvalidInput:
		return "Invalid request"
	case apperrors.ErrNotFound:
		return "Not found"
	default:
		return fmt.Sprintf("Request failed with status %d", status)
	}
}

// Message extracts a user-facing message from err, falling back to
// err.Error() for errors that did not come from the backend.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// isBackendAnswer reports whether err is a deliberate answer from a healthy
// backend, which must not trip the circuit breaker.
func isBackendAnswer(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}
