// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors carries the structured error taxonomy used across
// airwall. Every fallible operation returns one of these; nothing in the
// registry uses panics for control flow.
package errors

import (
	"errors"
	"fmt"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	// KindValidation covers malformed profiles and missing enterprise
	// trust material. Rejected before any state change.
	KindValidation
	// KindNotFound covers unknown profile IDs or keys. Callers treat it
	// as "nothing to do".
	KindNotFound
	// KindPermission covers gate failures. No state change, no event.
	KindPermission
	// KindConflict covers identity collisions (duplicate profile key).
	KindConflict
	// KindUnavailable covers persistence failures. In-memory state stays
	// authoritative; the write is reported and not rolled back.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a structured error with a category and optional cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// GetKind returns the Kind of the error, or KindUnknown if it is not an
// airwall error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error's kind matches k.
func IsKind(err error, k Kind) bool {
	return GetKind(err) == k
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
