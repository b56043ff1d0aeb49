// Package apperr classifies engine errors into the kinds callers must
// branch on, per spec.md §7: NotFound, InvalidInput, Conflict,
// TransientStorage, BackendFailure, Cancelled, Fatal.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries in spec.md §7.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindConflict         Kind = "conflict"
	KindTransientStorage Kind = "transient_storage"
	KindBackendFailure   Kind = "backend_failure"
	KindCancelled        Kind = "cancelled"
	KindFatal            Kind = "fatal"
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.As/Is without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and an operation label, mirroring the teacher's
// "fmt.Errorf(\"op: %w\", err)" convention but carrying a machine-checkable Kind.
func New(kind Kind, op string, err error) *Error {
	if err == nil {
		err = errors.New(string(kind))
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFound(op string, err error) *Error         { return New(KindNotFound, op, err) }
func InvalidInput(op string, err error) *Error      { return New(KindInvalidInput, op, err) }
func Conflict(op string, err error) *Error          { return New(KindConflict, op, err) }
func TransientStorage(op string, err error) *Error  { return New(KindTransientStorage, op, err) }
func BackendFailure(op string, err error) *Error    { return New(KindBackendFailure, op, err) }
func Fatal(op string, err error) *Error             { return New(KindFatal, op, err) }

// Cancelled wraps context.Canceled (or the given err) with KindCancelled.
// Propagation policy (spec.md §5/§7): cancellation is never converted to
// a different kind on its way up the call stack.
func Cancelled(op string, err error) *Error {
	if err == nil {
		err = context.Canceled
	}
	return New(KindCancelled, op, err)
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsCancelled reports whether err is a Cancelled apperr or a bare
// context.Canceled/context.DeadlineExceeded.
func IsCancelled(err error) bool {
	if Is(err, KindCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
