// Package domainerrors carries the security error taxonomy as codes.
//
// Services return *Error values so callers can branch on HasCode without string
// matching. Messages are the caller-visible text and stay generic; the wrapped
// cause carries internal detail for logs only.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of security failure.
type Code string

const (
	CodeInvalidCredentials     Code = "invalid_credentials"
	CodeMFARequired            Code = "mfa_required"
	CodeMFAInvalid             Code = "mfa_invalid"
	CodeAccountLocked          Code = "account_locked"
	CodeSessionExpired         Code = "session_expired"
	CodeSessionInvalid         Code = "session_invalid"
	CodePermissionDenied       Code = "permission_denied"
	CodeIntegrityViolation     Code = "integrity_violation"
	CodeKeyUnavailable         Code = "key_unavailable"
	CodeChainBroken            Code = "chain_broken"
	CodePersistenceUnavailable Code = "persistence_unavailable"

	CodeValidation Code = "validation_error"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a caller-visible message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
