package kernel

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// MatchPolicy selects which exception handlers a raised error reaches.
type MatchPolicy int

const (
	// MatchExact only considers the concrete dynamic type of the error (and
	// its ExceptionName, if any).
	MatchExact MatchPolicy = iota
	// MatchWrapped additionally walks the errors.Unwrap chain, outermost
	// first; the first level with handlers wins.
	MatchWrapped
)

// ParseMatchPolicy maps "exact" / "wrapped" to a MatchPolicy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch s {
	case "", "exact":
		return MatchExact, nil
	case "wrapped":
		return MatchWrapped, nil
	}
	return MatchExact, fmt.Errorf("unknown exception match policy %q", s)
}

func (p MatchPolicy) String() string {
	if p == MatchWrapped {
		return "wrapped"
	}
	return "exact"
}

// AnyException is the exception key matching every error. Its handlers run
// only when no more specific key has handlers.
var AnyException any = catchAll{}

type catchAll struct{}

// Named errors can be routed by a string key as well as by type.
type Named interface {
	ExceptionName() string
}

// ExceptionContext is the short-lived context an error is routed with. It is
// destroyed when the exception chain completes, whatever the outcome.
type ExceptionContext struct {
	*Context

	Error    error
	Original *Context
	Type     reflect.Type

	done atomic.Bool
}

// NewExceptionContext wraps err raised while handling original.
func NewExceptionContext(original *Context, err error) *ExceptionContext {
	var raw any
	var parent = original
	if original == nil {
		parent = NewContext(nil, nil)
	} else {
		raw = original.Raw
	}
	return &ExceptionContext{
		Context:  NewContext(parent, raw),
		Error:    err,
		Original: original,
		Type:     reflect.TypeOf(err),
	}
}

// Get looks at the exception context first, then at the original one.
func (e *ExceptionContext) Get(token Token) (any, bool) {
	if v, ok := e.Context.Get(token); ok {
		return v, ok
	}
	if e.Original != nil {
		return e.Original.Get(token)
	}
	return nil, false
}

// MarkDone stops later exception handlers from running.
func (e *ExceptionContext) MarkDone() { e.done.Store(true) }

// IsDone reports whether a handler completed the exception.
func (e *ExceptionContext) IsDone() bool { return e.done.Load() }

// ExceptionHandler handles an error routed to it by key.
type ExceptionHandler interface {
	Catch(ec *ExceptionContext) (any, error)
}

// ExceptionHandlerFunc adapts a plain function to ExceptionHandler.
type ExceptionHandlerFunc func(ec *ExceptionContext) (any, error)

func (f ExceptionHandlerFunc) Catch(ec *ExceptionContext) (any, error) { return f(ec) }

// AsExceptionHandler converts an exception-handler-like value.
func AsExceptionHandler(v any) (ExceptionHandler, error) {
	switch h := v.(type) {
	case ExceptionHandler:
		return h, nil
	case func(*ExceptionContext) (any, error):
		return ExceptionHandlerFunc(h), nil
	case func(*ExceptionContext):
		return ExceptionHandlerFunc(func(ec *ExceptionContext) (any, error) { h(ec); return nil, nil }), nil
	case func(error) (any, error):
		return ExceptionHandlerFunc(func(ec *ExceptionContext) (any, error) { return h(ec.Error) }), nil
	}
	return nil, invalidModifier("exception handler", v)
}

// UnhandledError is emitted as a chain result when no exception handler took
// the error. GuardedHandler turns it back into a rejection at its boundary.
type UnhandledError struct {
	Err error
}

func (e *UnhandledError) Error() string { return "unhandled exception: " + e.Err.Error() }
func (e *UnhandledError) Unwrap() error { return e.Err }

// AsUnhandled reports whether a chain result is an unhandled error value.
func AsUnhandled(v any) (*UnhandledError, bool) {
	u, ok := v.(*UnhandledError)
	return u, ok
}

// exceptionKeys lists the routing keys of err, most specific first.
func exceptionKeys(err error, policy MatchPolicy) []string {
	var keys []string
	seen := map[string]bool{}
	add := func(e error) {
		for _, k := range keysOf(e) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	add(err)
	if policy == MatchWrapped {
		for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
			add(e)
		}
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range j.Unwrap() {
				add(e)
			}
		}
	}
	return append(keys, keyString(AnyException))
}

func keysOf(err error) []string {
	keys := []string{keyString(reflect.TypeOf(err))}
	if n, ok := err.(Named); ok {
		keys = append(keys, keyString(n.ExceptionName()))
	}
	return keys
}

// catchFilter is the exception dispatcher's entry point, composed outermost.
type catchFilter struct {
	h *GuardedHandler
}

func (f *catchFilter) Intercept(ctx *Context, in any, next Handler) (any, error) {
	out, err := next.Handle(ctx, in)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil && IsCancelled(err) {
		return nil, err
	}
	ctx.SetError(err)

	chain := f.h.exceptionChain(err)
	if chain == nil {
		f.h.log.Warn("unhandled exception", zapOwner(f.h.owner), zapErr(err))
		return &UnhandledError{Err: err}, nil
	}

	ec := NewExceptionContext(ctx, err)
	defer ec.Destroy()
	return chain.Handle(ec.Context, ec)
}

// dispatch runs the handlers of one key in order until one marks the context
// done. The last non-nil result wins.
func dispatch(handlers []ExceptionHandler) Handler {
	return HandlerFunc(func(_ *Context, in any) (any, error) {
		ec, ok := in.(*ExceptionContext)
		if !ok {
			return nil, fmt.Errorf("exception chain invoked with %T", in)
		}
		var result any
		for _, eh := range handlers {
			out, err := eh.Catch(ec)
			if err != nil {
				return nil, err
			}
			if out != nil {
				result = out
			}
			if ec.IsDone() {
				break
			}
		}
		return result, nil
	})
}
