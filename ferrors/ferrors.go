/*Package ferrors defines the error taxonomy shared by every component of this module.

Every error that crosses a component boundary (the transfer adapter into an SSM handler, an SSM
into a driver's completion callback, a driver into the orchestrator) is a *Error carrying a Kind
from the table below, rather than an ad hoc string or an overloaded sentinel value.
*/
package ferrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	// IoError indicates a USB transport failure.
	IoError Kind = iota

	// Protocol indicates an unexpected device reply: short transfer, CRC mismatch, malformed
	// header.
	Protocol

	// Timeout indicates a transfer or awaited interrupt did not arrive in time.
	Timeout

	// Cancelled indicates a transfer was cancelled, typically by a deactivate in progress.
	Cancelled

	// NoMemory indicates an allocation failed.
	NoMemory

	// Unsupported indicates the driver lacks a capability the caller requested.
	Unsupported

	// Invalid indicates a bad argument: unknown finger, incompatible print, etc.
	Invalid

	// RetryScan indicates a per-scan soft failure; the session continues. See Hint.
	RetryScan

	// NotFound indicates a stored print is missing.
	NotFound

	// NoMatch indicates a verify/identify operation completed without finding a match.
	NoMatch

	// Match indicates a verify/identify operation completed with a match.
	Match
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "io error"
	case Protocol:
		return "protocol error"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case NoMemory:
		return "no memory"
	case Unsupported:
		return "unsupported"
	case Invalid:
		return "invalid argument"
	case RetryScan:
		return "retry scan"
	case NotFound:
		return "not found"
	case NoMatch:
		return "no match"
	case Match:
		return "match"
	default:
		return "unknown error kind"
	}
}

// RetryHint qualifies a RetryScan error with the reason a scan should be retried.
type RetryHint int

const (
	// RetryTooShort indicates too few stripes were captured to assemble an image.
	RetryTooShort RetryHint = iota

	// RetryOffCenter indicates the finger was not well centered on the sensor.
	RetryOffCenter

	// RetryRemoveFinger indicates the sensor wants the finger lifted before retrying.
	RetryRemoveFinger

	// RetryGeneral is a generic retry hint with no more specific cause.
	RetryGeneral
)

func (h RetryHint) String() string {
	switch h {
	case RetryTooShort:
		return "swipe too short"
	case RetryOffCenter:
		return "finger off center"
	case RetryRemoveFinger:
		return "remove finger and try again"
	default:
		return "retry"
	}
}

// Error is the concrete error type used throughout this module.
type Error struct {
	// Kind is the taxonomy bucket this error belongs to.
	Kind Kind

	// Hint is meaningful only when Kind == RetryScan.
	Hint RetryHint

	// msg is an optional human-readable annotation, independent of the wrapped cause.
	msg string

	// cause is the underlying error, if any, wrapped with github.com/pkg/errors for a stack trace.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	default:
		return e.Kind.String()
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a bare *Error of the given kind with a message and no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates cause with a Kind and message, carrying a stack trace via pkg/errors.
// If cause is nil, Wrap returns nil.
func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, msg: msg, cause: pkgerrors.WithStack(cause)}
}

// NewRetry builds a RetryScan error carrying hint.
func NewRetry(hint RetryHint) *Error {
	return &Error{Kind: RetryScan, Hint: hint}
}

// Is reports whether err (or anything it wraps) is a *Error of the given kind.
// It allows callers to write ferrors.Is(err, ferrors.Timeout) instead of a type switch.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf extracts the Kind of err if it is a *Error (directly or anywhere in its Unwrap chain),
// or returns IoError's zero-adjacent sentinel -1 if err is not one of ours.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return -1
}
