package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStage is returned when a stage value is not a known stage
	ErrInvalidStage = errors.New("invalid stage")

	// Sentinels matched by errors.Is against an *Error of the corresponding kind
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrTransient         = errors.New("transient failure")
	ErrDownstream        = errors.New("downstream failure")
)

// Kind classifies a workflow failure. The value doubles as the stable error code.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindForbidden         Kind = "FORBIDDEN"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindTransient         Kind = "TRANSIENT_ERROR"
	KindDownstream        Kind = "DOWNSTREAM_FAILURE"
	KindInternal          Kind = "INTERNAL_ERROR"
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindForbidden:
		return ErrForbidden
	case KindValidation:
		return ErrValidation
	case KindTransient:
		return ErrTransient
	case KindDownstream:
		return ErrDownstream
	}
	return nil
}

// Retryable reports whether the caller may retry the same request
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindDownstream
}

// Error is the tagged result returned across the workflow boundary
type Error struct {
	Kind         Kind
	Message      string
	CurrentStage Stage
	Err          error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.CurrentStage != "" {
		msg += fmt.Sprintf(" (current stage: %s)", e.CurrentStage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrForbidden) and friends match by kind
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// NewError builds a workflow error of the given kind
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity
func NotFound(format string, args ...interface{}) *Error {
	return NewError(KindNotFound, format, args...)
}

// InvalidTransition reports an action that is illegal from the current stage
func InvalidTransition(current Stage, format string, args ...interface{}) *Error {
	e := NewError(KindInvalidTransition, format, args...)
	e.CurrentStage = current
	return e
}

// Forbidden reports a failed role or separation of duties check
func Forbidden(format string, args ...interface{}) *Error {
	return NewError(KindForbidden, format, args...)
}

// Validation reports a missing or malformed payload field
func Validation(format string, args ...interface{}) *Error {
	return NewError(KindValidation, format, args...)
}

// Transient wraps a lock timeout, serialization or connection failure
func Transient(err error, format string, args ...interface{}) *Error {
	e := NewError(KindTransient, format, args...)
	e.Err = err
	return e
}

// Downstream wraps a failed post-commit collaborator call
func Downstream(err error, format string, args ...interface{}) *Error {
	e := NewError(KindDownstream, format, args...)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error, format string, args ...interface{}) *Error {
	e := NewError(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the kind of a workflow error, KindInternal for anything else
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

// AsError returns the *Error in err's chain, if any
func AsError(err error) (*Error, bool) {
	var we *Error
	ok := errors.As(err, &we)
	return we, ok
}
