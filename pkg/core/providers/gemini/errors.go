package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error represents an API error from Gemini.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gemini: %s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// mapError converts SDK errors into *Error. Context errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &Error{Type: ErrProvider, Message: err.Error(), cause: err}
	}

	return &Error{
		Type:    errorTypeFor(apiErr.Status, apiErr.Code),
		Message: apiErr.Message,
		Code:    apiErr.Status,
		cause:   err,
	}
}

// errorTypeFor maps Gemini status strings, with the HTTP code taking precedence.
func errorTypeFor(status string, code int) ErrorType {
	switch code {
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	}

	switch status {
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return ErrInvalidRequest
	case "UNAUTHENTICATED":
		return ErrAuthentication
	case "PERMISSION_DENIED":
		return ErrPermission
	case "NOT_FOUND":
		return ErrNotFound
	case "RESOURCE_EXHAUSTED":
		return ErrRateLimit
	case "INTERNAL":
		return ErrAPI
	case "UNAVAILABLE":
		return ErrOverloaded
	default:
		return ErrProvider
	}
}
