package errors

import (
	"errors"
	"fmt"
)

// Application error taxonomy. Concrete errors wrap one of these sentinels so
// callers can classify them with errors.Is.

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the user doesn't have permission
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidInput indicates invalid local input (email shape, file type or size)
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the remote side rejected credentials or a token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork indicates a remote call failed before producing a usable answer
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates a remote call exceeded its deadline
	ErrTimeout = errors.New("timed out")

	// ErrConfiguration indicates required configuration is missing at startup
	ErrConfiguration = errors.New("configuration error")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// NotFoundError creates a not found error with context
func NotFoundError(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

// AccessDeniedError creates an access denied error with context
func AccessDeniedError(reason string) error {
	if reason != "" {
		return fmt.Errorf("%s: %w", reason, ErrAccessDenied)
	}
	return ErrAccessDenied
}

// InvalidInputError creates an invalid input error with context
func InvalidInputError(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidInput)
}

// UnauthorizedError creates an authentication error carrying a user-facing reason
func UnauthorizedError(reason string) error {
	if reason == "" {
		return ErrUnauthorized
	}
	return fmt.Errorf("%s: %w", reason, ErrUnauthorized)
}

// NetworkError wraps a transport failure
func NetworkError(op string, cause error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrNetwork, cause)
}

// TimeoutError wraps a deadline expiry
func TimeoutError(op string) error {
	return fmt.Errorf("%s: %w", op, ErrTimeout)
}

// ConfigurationError reports a missing or invalid setting
func ConfigurationError(setting string) error {
	return fmt.Errorf("%s is required: %w", setting, ErrConfiguration)
}

// InternalError creates an internal error with context
func InternalError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInternal)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
