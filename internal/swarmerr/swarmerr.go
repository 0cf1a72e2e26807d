// Package swarmerr defines the closed set of error kinds the orchestration
// core surfaces: one structured type so every error can carry the
// offending entity and remediation guidance.
package swarmerr

import (
	"errors"
	"fmt"
)

// Kind is the closed sum type of error kinds the core surfaces.
type Kind string

const (
	NotFound             Kind = "not_found"
	InvalidTransition    Kind = "invalid_transition"
	Conflict             Kind = "conflict"
	ValidationError      Kind = "validation_error"
	RateLimited          Kind = "rate_limited"
	SubsystemUnavailable Kind = "subsystem_unavailable"
	Cancelled            Kind = "cancelled"
	Timeout              Kind = "timeout"
)

// Error is a structured error identifying the offending entity and the
// operation that failed, with an optional wrapped cause and remediation hint.
type Error struct {
	Kind       Kind
	Op         string // operation name, e.g. "cell.Update"
	Entity     string // offending entity id, e.g. "proj-abc.2"
	Message    string
	Remedy     string // human remediation guidance
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.Entity != "" {
		msg = fmt.Sprintf("%s (entity=%s)", msg, e.Entity)
	}
	if e.Remedy != "" {
		msg = fmt.Sprintf("%s — %s", msg, e.Remedy)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, swarmerr.New(swarmerr.NotFound, "", "", "")) matches any
// NotFound error; KindOf and IsKind do the same check without a target.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New constructs a structured Error.
func New(kind Kind, op, entity, message string) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, Message: message}
}

// Wrap constructs a structured Error around a cause.
func Wrap(kind Kind, op, entity, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, Message: message, Cause: cause}
}

// WithRemedy returns a copy of the error with remediation guidance attached.
func (e *Error) WithRemedy(remedy string) *Error {
	ne := *e
	ne.Remedy = remedy
	return &ne
}

// KindOf extracts the Kind from err, if it (or something it wraps) is a
// *Error. Returns "" and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
