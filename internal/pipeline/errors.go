package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies pipeline failures for the HTTP layer
type ErrorKind int

const (
	// KindInternal - storage or unexpected failures
	KindInternal ErrorKind = iota

	// KindNotFound - a referenced object or session does not exist
	KindNotFound

	// KindConflict - stored state contradicts the request
	// Example: an association record exists for the prompt but has no task id
	KindConflict

	// KindUpstream - the completion service or analytics API failed
	KindUpstream

	// KindValidation - malformed or contradictory request
	KindValidation
)

// String returns a short kind name used in error responses
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_failure"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// StatusCode maps a kind to its HTTP status
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status for this error
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

func newError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound builds a KindNotFound error
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Conflict builds a KindConflict error
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, nil, format, args...)
}

// Validation builds a KindValidation error
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// Upstream wraps a failure of an external collaborator
func Upstream(cause error, format string, args ...any) *Error {
	return newError(KindUpstream, cause, format, args...)
}

// Internal wraps a storage or unexpected failure
func Internal(cause error, format string, args ...any) *Error {
	return newError(KindInternal, cause, format, args...)
}

// KindOf returns the kind of the first pipeline error in the chain, or KindInternal
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
