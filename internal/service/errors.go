package service

import (
	"errors"
	"fmt"
)

// Kind classifies errors that are the caller's fault. Errors without a Kind
// are server-side failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a client-facing failure. Message is safe to return to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(message string, err error) error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

func conflict(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// KindOf returns the Kind of err, or 0 for server-side failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err is a client error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
