// Package trueerr defines the session-local error kinds shared across
// the tokenizer, matcher, recognizer, and session layers.
package trueerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire-protocol reporting and recovery
// policy (see error handling design).
type Kind int

const (
	// InvalidInput covers malformed UTF-8 script text, out-of-range
	// token ids, a missing handshake, an unknown audio codec, a
	// non-binary or unparsable wire message.
	InvalidInput Kind = iota
	// ResourceExhausted covers buffer growth beyond configured caps.
	ResourceExhausted
	// ModelFailure covers the acoustic model rejecting input or
	// failing internally.
	ModelFailure
	// Internal covers programming-invariant violations (e.g. context
	// size exceeding its configured maximum).
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case ResourceExhausted:
		return "resource_exhausted"
	case ModelFailure:
		return "model_failure"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a session-local error tagged with a Kind. Every error
// surfaced across a component boundary in this module is either this
// type or wraps it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to Internal for anything else — an un-kinded error
// reaching the session boundary is itself a programming-invariant
// violation.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
