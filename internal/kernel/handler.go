package kernel

import "fmt"

// ==========================================
// 核心接口定义 (Core Interfaces)
// ==========================================

// Handler is one unit of work: the backend, or a chain node wrapping it.
type Handler interface {
	Handle(ctx *Context, in any) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx *Context, in any) (any, error)

func (f HandlerFunc) Handle(ctx *Context, in any) (any, error) { return f(ctx, in) }

// Guard decides whether an invocation may run at all.
type Guard interface {
	CanActivate(ctx *Context, in any) (bool, error)
}

// Interceptor wraps next: it may transform input or output, short-circuit, or
// delegate.
type Interceptor interface {
	Intercept(ctx *Context, in any, next Handler) (any, error)
}

// Filter has the shape of an Interceptor but lives in its own registry and is
// composed outside every interceptor.
type Filter interface {
	Intercept(ctx *Context, in any, next Handler) (any, error)
}

// GuardFunc adapts a plain function to Guard.
type GuardFunc func(ctx *Context, in any) (bool, error)

func (f GuardFunc) CanActivate(ctx *Context, in any) (bool, error) { return f(ctx, in) }

// InterceptorFunc adapts a plain function to Interceptor and Filter.
type InterceptorFunc func(ctx *Context, in any, next Handler) (any, error)

func (f InterceptorFunc) Intercept(ctx *Context, in any, next Handler) (any, error) {
	return f(ctx, in, next)
}

// FilterFunc is an InterceptorFunc meant for a filter registry.
type FilterFunc = InterceptorFunc

// NextFunc is the argument-less continuation some interceptors prefer.
type NextFunc func() (any, error)

// Equaler lets the registry drop structurally equal duplicates.
type Equaler interface {
	Equals(other any) bool
}

// ==========================================
// 归一化 (Normalization of modifier-like values)
// ==========================================

// AsGuard converts a guard-like value to Guard.
func AsGuard(v any) (Guard, error) {
	switch g := v.(type) {
	case Guard:
		return g, nil
	case func(*Context, any) (bool, error):
		return GuardFunc(g), nil
	case func(*Context, any) bool:
		return GuardFunc(func(ctx *Context, in any) (bool, error) { return g(ctx, in), nil }), nil
	case func(*Context) bool:
		return GuardFunc(func(ctx *Context, _ any) (bool, error) { return g(ctx), nil }), nil
	case func(*Context, any) *Future[bool]:
		return GuardFunc(func(ctx *Context, in any) (bool, error) {
			f := g(ctx, in)
			if f == nil {
				return true, nil
			}
			return f.AwaitContext(ctx)
		}), nil
	}
	return nil, invalidModifier("guard", v)
}

// AsInterceptor converts an interceptor-like value to Interceptor.
func AsInterceptor(v any) (Interceptor, error) {
	f, err := asIntercept(v, "interceptor")
	if err != nil {
		return nil, err
	}
	return f, nil
}

// AsFilter converts a filter-like value to Filter.
func AsFilter(v any) (Filter, error) {
	f, err := asIntercept(v, "filter")
	if err != nil {
		return nil, err
	}
	return f, nil
}

type intercepter interface {
	Intercept(ctx *Context, in any, next Handler) (any, error)
}

func asIntercept(v any, kind string) (intercepter, error) {
	switch i := v.(type) {
	case intercepter:
		return i, nil
	case func(*Context, any, Handler) (any, error):
		return InterceptorFunc(i), nil
	case func(*Context, any, NextFunc) (any, error):
		return InterceptorFunc(func(ctx *Context, in any, next Handler) (any, error) {
			return i(ctx, in, func() (any, error) { return next.Handle(ctx, in) })
		}), nil
	case func(*Context, any, func() (any, error)) (any, error):
		return InterceptorFunc(func(ctx *Context, in any, next Handler) (any, error) {
			return i(ctx, in, func() (any, error) { return next.Handle(ctx, in) })
		}), nil
	}
	return nil, invalidModifier(kind, v)
}

// AsHandler converts a handler-like value to Handler.
func AsHandler(v any) (Handler, error) {
	switch h := v.(type) {
	case Handler:
		return h, nil
	case func(*Context, any) (any, error):
		return HandlerFunc(h), nil
	case func(*Context) (any, error):
		return HandlerFunc(func(ctx *Context, _ any) (any, error) { return h(ctx) }), nil
	case func(any) (any, error):
		return HandlerFunc(func(_ *Context, in any) (any, error) { return h(in) }), nil
	}
	return nil, invalidModifier("handler", v)
}

func invalidModifier(kind string, v any) error {
	return newError("normalize", ErrInvalidModifier, fmt.Errorf("%T is not a %s", v, kind))
}
