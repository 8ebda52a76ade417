package kernel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// 错误分类 (Error kinds)
var (
	// ErrForbidden is returned when a guard explicitly answers false.
	ErrForbidden = errors.New("forbidden resource")

	// ErrMissingConfiguration is a programmer error: a Use* call on a handler that
	// has no backing token or registry for that kind of modifier.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrTimeout is returned by the Timeout interceptor.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled reports that an invocation was abandoned because its handler
	// was destroyed or the caller gave up.
	ErrCancelled = fmt.Errorf("invocation cancelled: %w", context.Canceled)

	// ErrInvalidModifier is returned when a value cannot be normalized into a
	// guard, interceptor, filter or exception handler.
	ErrInvalidModifier = errors.New("invalid modifier")

	// ErrDestroyed is returned by registration calls on a destroyed handler.
	ErrDestroyed = errors.New("handler destroyed")

	// ErrPanic reports a panic recovered inside an invocation.
	ErrPanic = errors.New("panic")
)

// Error carries the failing operation and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kernel.%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("kernel.%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind as well as the wrapped chain.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// ForbiddenError is the concrete error raised by a rejecting guard.
type ForbiddenError struct {
	Guard int // index of the rejecting guard
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%v (guard #%d)", ErrForbidden, e.Guard)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// ExceptionName lets string-keyed exception handlers match forbidden errors.
func (e *ForbiddenError) ExceptionName() string { return "Forbidden" }

// PanicError is a panic recovered by a Future worker. Guards and backends run
// on their own goroutine, so the caller could never recover it otherwise.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("%v: %v", ErrPanic, e.Value) }

func (e *PanicError) Is(target error) bool { return target == ErrPanic }

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *PanicError) ExceptionName() string { return "Panic" }

// StackTrace is read by incident recorders.
func (e *PanicError) StackTrace() string { return string(e.Stack) }

// IsForbidden reports whether err is (or wraps) a guard rejection.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsCancelled reports whether err stems from cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
