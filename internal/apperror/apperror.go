// Package apperror classifies service failures so handlers can map them
// to HTTP responses without inspecting error strings.
package apperror

import (
	"errors"
	"net/http"
)

// Kind buckets an error by how the caller should react.
type Kind int

const (
	// KindValidation covers malformed user input; the caller must resubmit.
	KindValidation Kind = iota
	// KindState covers rejected session transitions (already checked in,
	// no active attendance); the request was well-formed.
	KindState
	// KindDependency covers failures in the stores behind the service.
	KindDependency
)

// Error carries a machine code alongside the user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a user-input error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// State builds a session-state error.
func State(code, message string) *Error {
	return &Error{Kind: KindState, Code: code, Message: message}
}

// Dependency wraps a store failure.
func Dependency(code, message string, err error) *Error {
	return &Error{Kind: KindDependency, Code: code, Message: message, Err: err}
}

// UserMessage returns the message safe to put on the wire. The wrapped
// cause of a dependency failure stays in logs only.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// CodeOf extracts the machine code, or "INTERNAL_ERROR" for plain errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// HTTPStatus maps an error to the response status the handlers use.
// Validation and state errors are client problems; everything else,
// including dependency failures on primary writes, is a 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindState:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
