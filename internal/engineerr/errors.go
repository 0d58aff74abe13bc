// Package engineerr defines the typed error kinds surfaced across the
// orchestration engine. Callers use errors.Is
// against the sentinel Kind values and errors.As to recover the *Error
// wrapper for its Kind and Detail fields.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories callers must distinguish.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindPermissionDenied Kind = "permission_denied"
	KindSafetyViolation Kind = "safety_violation"
	KindNotFound        Kind = "not_found"
	KindProvider        Kind = "provider"
	KindNetwork         Kind = "network"
	KindProxy           Kind = "proxy"
	KindTimeout         Kind = "timeout"
	KindParse           Kind = "parse"
	KindDatabase        Kind = "database"
	KindInternal        Kind = "internal"
)

// Error is a typed error carrying a Kind, a human message, and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, engineerr.New(KindNotFound, "")) matches regardless of
// message text.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a bare Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given Kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	// ErrValidation sentinels, usable with errors.Is via (*Error).Is.
	ErrValidation       = New(KindValidation, "")
	ErrPermissionDenied = New(KindPermissionDenied, "")
	ErrSafetyViolation  = New(KindSafetyViolation, "")
	ErrNotFound         = New(KindNotFound, "")
	ErrProvider         = New(KindProvider, "")
	ErrNetwork          = New(KindNetwork, "")
	ErrProxy            = New(KindProxy, "")
	ErrTimeout          = New(KindTimeout, "")
	ErrParse            = New(KindParse, "")
	ErrDatabase         = New(KindDatabase, "")
	ErrInternal         = New(KindInternal, "")
)
