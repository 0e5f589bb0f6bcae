package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure surfaced by the auth layer.
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Authentication errors. Credentials failures are deliberately
	// generic: a missing user and a wrong password share one code.
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeFeatureDisabled    ErrorCode = "FEATURE_DISABLED"
	ErrCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	ErrCodeRateLimited        ErrorCode = "RATE_LIMITED"
	ErrCodeTwoFAInvalid       ErrorCode = "TWO_FA_INVALID"
	ErrCodeTransportFailure   ErrorCode = "TRANSPORT_FAILURE"
)

// Error is a structured error with a code, a user-safe message and an
// optional wrapped cause. The wrapped cause is for logs only and is
// never rendered to the visitor.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes.
// Disabled features map to 403, never 404.
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeTokenInvalid, ErrCodeTwoFAInvalid:
		return http.StatusUnauthorized
	case ErrCodeFeatureDisabled:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTransportFailure:
		return http.StatusServiceUnavailable
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// InvalidCredentials creates the generic credentials failure. The
// message never distinguishes unknown accounts from wrong passwords.
func InvalidCredentials() *Error {
	return New(ErrCodeInvalidCredentials, "invalid email or password")
}

// FeatureDisabled creates a "feature disabled" error
func FeatureDisabled(feature string) *Error {
	return New(ErrCodeFeatureDisabled, fmt.Sprintf("%s is disabled", feature))
}

// TokenInvalid creates the generic expired-or-invalid token error
func TokenInvalid() *Error {
	return New(ErrCodeTokenInvalid, "the link is invalid or has expired")
}

// RateLimited creates a "rate limited" error
func RateLimited(message string) *Error {
	return New(ErrCodeRateLimited, message)
}

// TwoFAInvalid creates a second-factor mismatch error
func TwoFAInvalid() *Error {
	return New(ErrCodeTwoFAInvalid, "invalid code, please try again")
}

// TransportFailure wraps a mail transport error
func TransportFailure(err error) *Error {
	return Wrap(err, ErrCodeTransportFailure, "there was an error sending the mail, please try again later")
}

// Internal wraps an internal error
func Internal(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
