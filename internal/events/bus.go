// Package events dispatches in-process application events to listeners, each
// listener running behind its own GuardedHandler.
package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"gnest/internal/kernel"

	"go.uber.org/zap"
)

// EventNamer 让事件按名字而不是运行时类型分发
type EventNamer interface {
	EventName() string
}

// Key 计算事件 (或 On 的 key 参数) 的分发键：
// string 原样使用，实现 EventNamer 的按名字，reflect.Type 与其他值按带包路径的类型名
func Key(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case EventNamer:
		return k.EventName()
	case reflect.Type:
		return kernel.TypeName(k)
	}
	return kernel.TypeName(reflect.TypeOf(v))
}

func eventKey(in any) any {
	if k := Key(in); k != "" {
		return k
	}
	return nil
}

type Option func(*Bus)

func WithLogger(l *zap.Logger) Option { return func(b *Bus) { b.log = l } }

func WithExceptionPolicy(p kernel.MatchPolicy) Option { return func(b *Bus) { b.policy = p } }

// Bus 进程内事件总线
type Bus struct {
	registry *kernel.MemoryRegistry
	resolver *kernel.RegistryTypeResolver
	log      *zap.Logger
	policy   kernel.MatchPolicy

	mu        sync.RWMutex
	listeners map[string][]*Subscription
	closed    bool
}

func New(opts ...Option) *Bus {
	b := &Bus{listeners: map[string][]*Subscription{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.registry = kernel.NewRegistry()
	b.resolver = kernel.NewTypeResolver(b.registry, b, nil)
	return b
}

// Subscription 一个监听器
type Subscription struct {
	bus     *Bus
	key     string
	once    bool
	handler *kernel.GuardedHandler
	off     sync.Once
}

// Handler 返回监听器的 GuardedHandler，可继续注册 guard / interceptor。
// 直接在上面登记类型级修饰器时 key 必须先经过 Key，推荐使用 UseTypeFilters / UseTypeInterceptors
func (s *Subscription) Handler() *kernel.GuardedHandler { return s.handler }

// UseTypeFilters 只对这个监听器生效，key 与 Emit 使用同一套分发键
func (s *Subscription) UseTypeFilters(key any, filters ...any) error {
	return s.handler.UseTypeFilters(Key(key), filters...)
}

func (s *Subscription) UseTypeInterceptors(key any, interceptors ...any) error {
	return s.handler.UseTypeInterceptors(Key(key), interceptors...)
}

// Off 取消监听并销毁其 GuardedHandler，可重复调用
func (s *Subscription) Off() {
	s.off.Do(func() {
		s.bus.remove(s)
		s.handler.Destroy()
	})
}

// On 注册监听器。listener 可以是 kernel.Handler、func(*kernel.Context, any) (any, error)、
// func(*kernel.Context, any) error 或 func(any)；opts 传给监听器的 GuardedHandler
func (b *Bus) On(key any, listener any, opts ...kernel.Option) (*Subscription, error) {
	return b.on(key, listener, false, opts)
}

// Once 注册只执行一次的监听器 (guard 拒绝不计入次数)
func (b *Bus) Once(key any, listener any, opts ...kernel.Option) (*Subscription, error) {
	return b.on(key, listener, true, append(opts, kernel.WithLimit(1)))
}

func (b *Bus) on(key, listener any, once bool, opts []kernel.Option) (*Subscription, error) {
	k := Key(key)
	if k == "" {
		return nil, fmt.Errorf("%w: empty event key", kernel.ErrMissingConfiguration)
	}
	backend, err := asListener(listener)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, kernel.ErrDestroyed
	}
	sub := &Subscription{bus: b, key: k, once: once}
	base := []kernel.Option{
		kernel.WithRegistry(b.registry),
		kernel.WithTypeKey(eventKey),
		kernel.WithTypeResolver(b.resolver),
		kernel.WithExceptionPolicy(b.policy),
		kernel.WithLogger(b.log.Named("kernel")),
	}
	sub.handler = kernel.NewGuardedHandler(sub, backend, append(base, opts...)...)
	b.listeners[k] = append(b.listeners[k], sub)
	return sub, nil
}

func asListener(listener any) (kernel.Handler, error) {
	switch l := listener.(type) {
	case func(*kernel.Context, any) error:
		return kernel.HandlerFunc(func(ctx *kernel.Context, in any) (any, error) { return nil, l(ctx, in) }), nil
	case func(any):
		return kernel.HandlerFunc(func(_ *kernel.Context, in any) (any, error) { l(in); return nil, nil }), nil
	}
	return kernel.AsHandler(listener)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[s.key]
	for i, x := range list {
		if x == s {
			b.listeners[s.key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.listeners[s.key]) == 0 {
		delete(b.listeners, s.key)
	}
}

func (b *Bus) snapshot(key string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Subscription(nil), b.listeners[key]...)
}

func (b *Bus) all() []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Subscription
	for _, list := range b.listeners {
		out = append(out, list...)
	}
	return out
}

// UseTypeFilters 为 key 对应的事件登记 filter，对所有监听器生效
func (b *Bus) UseTypeFilters(key any, filters ...any) error {
	if err := b.resolver.UseFilters(Key(key), filters...); err != nil {
		return err
	}
	b.invalidate()
	return nil
}

// UseTypeInterceptors 为 key 对应的事件登记 interceptor，对所有监听器生效
func (b *Bus) UseTypeInterceptors(key any, interceptors ...any) error {
	if err := b.resolver.UseInterceptors(Key(key), interceptors...); err != nil {
		return err
	}
	b.invalidate()
	return nil
}

// ReleaseType 移除 key 上登记的总线级 filter 与 interceptor
func (b *Bus) ReleaseType(key any) {
	b.resolver.Release(Key(key))
	b.invalidate()
}

// 父级解析器变化时，监听器缓存的链必须失效
func (b *Bus) invalidate() {
	for _, s := range b.all() {
		s.handler.Invalidate()
	}
}

// Emit 同步地把事件依次交给所有监听器，返回各监听器的结果 (顺序与注册一致)。
// 某个监听器失败不影响其他监听器，所有错误合并返回
func (b *Bus) Emit(ctx context.Context, event any) ([]any, error) {
	subs := b.snapshot(Key(event))
	results := make([]any, len(subs))
	var errs []error
	for i, s := range subs {
		out, err := b.run(ctx, s, event).Await()
		results[i] = out
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// EmitAsync 并发地触发所有监听器
func (b *Bus) EmitAsync(ctx context.Context, event any) []*kernel.Future[any] {
	subs := b.snapshot(Key(event))
	futures := make([]*kernel.Future[any], len(subs))
	for i, s := range subs {
		futures[i] = b.run(ctx, s, event)
	}
	return futures
}

func (b *Bus) run(ctx context.Context, s *Subscription, event any) *kernel.Future[any] {
	kctx := kernel.NewContext(ctx, event)
	f := s.handler.Handle(kctx, event)
	return kernel.RunAsync(func() (any, error) {
		defer kctx.Destroy()
		out, err := f.Await()
		if s.once && !kernel.IsForbidden(err) && !kernel.IsCancelled(err) {
			s.Off()
		}
		if err != nil {
			b.log.Debug("listener failed", zap.String("event", s.key), zap.Error(err))
		}
		return out, err
	})
}

// Close 注销全部监听器
func (b *Bus) Close() {
	for _, s := range b.all() {
		s.Off()
	}
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// OnModuleDestroy 接入 HTTP 应用的生命周期
func (b *Bus) OnModuleDestroy() { b.Close() }
