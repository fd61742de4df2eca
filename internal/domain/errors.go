package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so transports can map it onto a status
// code without inspecting message text.
type ErrorKind string

const (
	// ErrInvalidArgument: malformed input, unknown enum value, missing field.
	ErrInvalidArgument ErrorKind = "invalid_argument"
	// ErrUnauthenticated: missing or bad credential.
	ErrUnauthenticated ErrorKind = "unauthenticated"
	// ErrPermissionDenied: authenticated but not allowed for this match/role.
	ErrPermissionDenied ErrorKind = "permission_denied"
	// ErrNotFound: match, innings, player or event does not exist.
	ErrNotFound ErrorKind = "not_found"
	// ErrFailedPrecondition: valid request, wrong state (e.g. ball for a
	// match that is not live, batsman not in the playing eleven).
	ErrFailedPrecondition ErrorKind = "failed_precondition"
	// ErrConflict: duplicate or contradictory concurrent write (e.g. over
	// already opened, same scorer re-submitting a ball).
	ErrConflict ErrorKind = "conflict"
	// ErrDisputed: the write was accepted but consensus flagged a dispute;
	// carries the dispute id in Details.
	ErrDisputed ErrorKind = "disputed"
	// ErrTransient: timeout or queue overflow; safe to retry.
	ErrTransient ErrorKind = "transient"
	// ErrInternal: invariant violation, storage corruption.
	ErrInternal ErrorKind = "internal"
)

// Error is the one error type the engine returns across package
// boundaries. Kind drives transport mapping, Details carries
// machine-readable hints (dispute ids, offending fields).
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a classified error with a formatted message.
func E(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetail returns e with an extra key/value hint attached.
func (e *Error) WithDetail(k, v string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[k] = v
	return e
}

// KindOf extracts the classification from err, unwrapping as needed.
// Unclassified errors report ErrInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
