// Package domain provides the shared data model and canonical error types
// for the flight recorder core.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of a recorder error.
type ErrorKind string

const (
	// ErrorKindNotFound indicates an unknown trace, session, or record identifier.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindCorrupt indicates a persisted file failed to parse.
	ErrorKindCorrupt ErrorKind = "corrupt"

	// ErrorKindStorageIO indicates a filesystem read or write failure.
	ErrorKindStorageIO ErrorKind = "storage_io"

	// ErrorKindInvalid indicates a caller violated a precondition.
	ErrorKindInvalid ErrorKind = "invalid"
)

// Error is the canonical error returned by the record store, recorder,
// audit trail builder, and replay engine.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Entity identifies what the error refers to (trace id, session id, path)
	Entity string `json:"entity,omitempty"`

	// Op is the operation that failed (for debugging)
	Op string `json:"-"`

	// Err is the underlying cause, if any
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Entity)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new recorder error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// WithEntity attaches the identifier or path the error refers to.
func (e *Error) WithEntity(entity string) *Error {
	e.Entity = entity
	return e
}

// WithOp attaches the failing operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Convenience constructors for common errors

// ErrTraceNotFound creates a not-found error for an unknown trace identifier.
func ErrTraceNotFound(traceID string) *Error {
	return NewError(ErrorKindNotFound, "trace not found").WithEntity(traceID)
}

// ErrSessionNotFound creates a not-found error for an unknown session identifier.
func ErrSessionNotFound(sessionID string) *Error {
	return NewError(ErrorKindNotFound, "session not found").WithEntity(sessionID)
}

// ErrRecordNotFound creates a not-found error for a missing record file or id.
func ErrRecordNotFound(ref string) *Error {
	return NewError(ErrorKindNotFound, "record not found").WithEntity(ref)
}

// ErrCorrupt creates a corrupt-record error for an unparsable file.
func ErrCorrupt(path string, cause error) *Error {
	return NewError(ErrorKindCorrupt, "record failed to parse").WithEntity(path).WithCause(cause)
}

// ErrStorageIO creates a storage I/O error.
func ErrStorageIO(op string, cause error) *Error {
	return NewError(ErrorKindStorageIO, "storage operation failed").WithOp(op).WithCause(cause)
}

// ErrInvalid creates a precondition-violation error.
func ErrInvalid(message string) *Error {
	return NewError(ErrorKindInvalid, message)
}

// IsKind reports whether err is (or wraps) a recorder error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, ErrorKindNotFound) }

// IsCorrupt reports whether err is a corrupt-record error.
func IsCorrupt(err error) bool { return IsKind(err, ErrorKindCorrupt) }
