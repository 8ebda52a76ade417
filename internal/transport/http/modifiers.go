package http

import (
	"errors"
	"fmt"

	"gnest/internal/kernel"
)

type exceptionBinding struct {
	key      any
	handlers []any
}

// modifiers 一个作用域 (全局 / 路由组 / 路由) 上登记的增强器
type modifiers struct {
	guards           []any
	interceptors     []any
	filters          []any
	exceptionFilters []any
	exceptions       []exceptionBinding
}

// Modifier 路由级增强器，Handle 的可变参数里使用
type Modifier func(*modifiers)

func Guards(gs ...any) Modifier {
	return func(m *modifiers) { m.guards = append(m.guards, gs...) }
}

func Interceptors(is ...any) Modifier {
	return func(m *modifiers) { m.interceptors = append(m.interceptors, is...) }
}

func Filters(fs ...any) Modifier {
	return func(m *modifiers) { m.filters = append(m.filters, fs...) }
}

func ExceptionFilters(fs ...any) Modifier {
	return func(m *modifiers) { m.exceptionFilters = append(m.exceptionFilters, fs...) }
}

// Catch 为 key 匹配的异常登记处理器，key 为 reflect.Type、ExceptionName 或 kernel.AnyException
func Catch(key any, handlers ...any) Modifier {
	return func(m *modifiers) { m.exceptions = append(m.exceptions, exceptionBinding{key, handlers}) }
}

// collect 编译期提取增强器
func collect(enhancers []any) (*modifiers, error) {
	m := &modifiers{}
	for _, e := range enhancers {
		switch v := e.(type) {
		case Modifier:
			v(m)
		case kernel.Guard:
			m.guards = append(m.guards, v)
		case kernel.Interceptor:
			m.interceptors = append(m.interceptors, v)
		case kernel.ExceptionHandler:
			m.exceptions = append(m.exceptions, exceptionBinding{kernel.AnyException, []any{v}})
		default:
			return nil, fmt.Errorf("%w: unsupported route enhancer %T", kernel.ErrInvalidModifier, e)
		}
	}
	return m, nil
}

// apply 按作用域顺序注入：guards/interceptors/filters 全局 -> 组 -> 路由，
// 异常处理器反过来 路由 -> 组 -> 全局
func apply(h *kernel.GuardedHandler, scopes []*modifiers) error {
	var errs []error
	for _, m := range scopes {
		errs = append(errs,
			h.UseGuards(m.guards...),
			h.UseInterceptors(m.interceptors...),
			h.UseFilters(m.filters...),
			h.UseExceptionFilters(m.exceptionFilters...),
		)
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		for _, b := range scopes[i].exceptions {
			errs = append(errs, h.UseExceptionHandlers(b.key, b.handlers...))
		}
	}
	return errors.Join(errs...)
}
