package kernel

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Option configures a GuardedHandler.
type Option func(*options)

type options struct {
	registry   Registry
	tokens     *Tokens
	limit      int
	completion func(*Context) bool
	typeKey    func(in any) any
	parent     TypeResolver
	policy     MatchPolicy
	logger     *zap.Logger
	noCatch    bool
}

// WithRegistry backs the handler with reg. Unless WithTokens is given, tokens
// are scoped to the handler's owner.
func WithRegistry(reg Registry) Option { return func(o *options) { o.registry = reg } }

// WithTokens overrides the tokens the handler reads and writes. A zero token
// leaves that kind of modifier unconfigured.
func WithTokens(t Tokens) Option { return func(o *options) { o.tokens = &t } }

// WithLimit caps the number of backend invocations; further calls resolve to
// nil without error. n <= 0 means unlimited.
func WithLimit(n int) Option { return func(o *options) { o.limit = n } }

// WithCompletion short-circuits invocations for which done reports true.
func WithCompletion(done func(*Context) bool) Option {
	return func(o *options) { o.completion = done }
}

// WithTypeKey enables per-type dispatch: key(in) selects the type-scoped chain.
// A nil key uses the shared chain.
func WithTypeKey(key func(in any) any) Option { return func(o *options) { o.typeKey = key } }

// WithTypeResolver makes parent the outer layer of every type-scoped lookup.
func WithTypeResolver(parent TypeResolver) Option { return func(o *options) { o.parent = parent } }

// WithExceptionPolicy selects how raised errors are matched to handlers.
func WithExceptionPolicy(p MatchPolicy) Option { return func(o *options) { o.policy = p } }

// WithLogger sets the kernel logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithoutCatch leaves errors untouched: no exception dispatcher is composed.
func WithoutCatch() Option { return func(o *options) { o.noCatch = true } }

// RuntimeType is a WithTypeKey function keying by the input's dynamic type.
func RuntimeType(in any) any {
	if in == nil {
		return nil
	}
	return reflect.TypeOf(in)
}

// GuardedHandler is the entry point of one logical endpoint: it evaluates
// guards, then runs the cached composed chain under the handler's
// cancellation signal.
type GuardedHandler struct {
	owner   any
	backend Handler
	opts    options
	log     *zap.Logger
	catch   Filter

	mu          sync.Mutex
	registry    Registry
	tokens      Tokens
	resolver    *RegistryTypeResolver
	guards      []Guard
	guardsReady bool
	core        Handler
	shared      Handler
	typed       map[string]Handler
	exceptions  map[string]Handler
	introduced  map[Token]struct{}
	remaining   int

	stop    chan struct{}
	destroy sync.Once
}

// NewGuardedHandler wraps backend for owner.
func NewGuardedHandler(owner any, backend Handler, opts ...Option) *GuardedHandler {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	h := &GuardedHandler{
		owner:      owner,
		backend:    backend,
		opts:       o,
		log:        o.logger,
		registry:   o.registry,
		typed:      map[string]Handler{},
		exceptions: map[string]Handler{},
		introduced: map[Token]struct{}{},
		remaining:  o.limit,
		stop:       make(chan struct{}),
	}
	switch {
	case o.tokens != nil:
		h.tokens = *o.tokens
	case o.registry != nil:
		h.tokens = ScopedTokens(owner)
	}
	if o.registry != nil {
		h.resolver = NewTypeResolver(o.registry, owner, o.parent)
	}
	if !o.noCatch {
		h.catch = &catchFilter{h: h}
	}
	return h
}

// Owner returns the identity the handler was created for.
func (h *GuardedHandler) Owner() any { return h.owner }

// ==========================================
// 注册 (Registration)
// ==========================================

// UseGuards appends guards.
func (h *GuardedHandler) UseGuards(guards ...any) error {
	return h.register("UseGuards", h.tokens.Guards, nil, guards, func(v any) (any, error) { return AsGuard(v) })
}

// UseGuardsAt inserts guards starting at order.
func (h *GuardedHandler) UseGuardsAt(order int, guards ...any) error {
	return h.register("UseGuards", h.tokens.Guards, &order, guards, func(v any) (any, error) { return AsGuard(v) })
}

// UseInterceptors appends interceptors.
func (h *GuardedHandler) UseInterceptors(interceptors ...any) error {
	return h.register("UseInterceptors", h.tokens.Interceptors, nil, interceptors, func(v any) (any, error) { return AsInterceptor(v) })
}

// UseInterceptorsAt inserts interceptors starting at order.
func (h *GuardedHandler) UseInterceptorsAt(order int, interceptors ...any) error {
	return h.register("UseInterceptors", h.tokens.Interceptors, &order, interceptors, func(v any) (any, error) { return AsInterceptor(v) })
}

// UseFilters appends filters.
func (h *GuardedHandler) UseFilters(filters ...any) error {
	return h.register("UseFilters", h.tokens.Filters, nil, filters, func(v any) (any, error) { return AsFilter(v) })
}

// UseFiltersAt inserts filters starting at order.
func (h *GuardedHandler) UseFiltersAt(order int, filters ...any) error {
	return h.register("UseFilters", h.tokens.Filters, &order, filters, func(v any) (any, error) { return AsFilter(v) })
}

// UseExceptionFilters wraps the exception dispatch chain.
func (h *GuardedHandler) UseExceptionFilters(filters ...any) error {
	return h.register("UseExceptionFilters", h.tokens.ExceptionFilters, nil, filters, func(v any) (any, error) { return AsFilter(v) })
}

// UseExceptionHandlers routes errors matching key (a reflect.Type, a string
// matched against ExceptionName, or a sample error value) to handlers.
func (h *GuardedHandler) UseExceptionHandlers(key any, handlers ...any) error {
	var token Token
	if h.opts.registry != nil {
		token = TokenFor(h.owner, PurposeExceptions, keyString(key))
	}
	return h.register("UseExceptionHandlers", token, nil, handlers, func(v any) (any, error) { return AsExceptionHandler(v) })
}

// UseTypeFilters registers filters that only apply to inputs keyed by key.
func (h *GuardedHandler) UseTypeFilters(key any, filters ...any) error {
	return h.register("UseTypeFilters", h.typeToken(PurposeTypeFilters, key), nil, filters, func(v any) (any, error) { return AsFilter(v) })
}

// UseTypeInterceptors registers interceptors that only apply to inputs keyed
// by key.
func (h *GuardedHandler) UseTypeInterceptors(key any, interceptors ...any) error {
	return h.register("UseTypeInterceptors", h.typeToken(PurposeTypeInterceptors, key), nil, interceptors, func(v any) (any, error) { return AsInterceptor(v) })
}

func (h *GuardedHandler) typeToken(p Purpose, key any) Token {
	if h.resolver == nil {
		return Token{}
	}
	return h.resolver.token(p, key)
}

func (h *GuardedHandler) register(op string, token Token, order *int, values []any, conv func(any) (any, error)) error {
	if len(values) == 0 {
		return nil
	}
	if h.Destroyed() {
		return newError(op, ErrDestroyed, nil)
	}
	providers := make([]Provider, 0, len(values))
	for i, v := range values {
		m, err := conv(v)
		if err != nil {
			return newError(op, ErrInvalidModifier, err)
		}
		p := Provider{Token: token, Value: m}
		if order != nil {
			p.Order = At(*order + i)
		}
		providers = append(providers, p)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Destroy 可能在上面的检查之后抢先拿到锁
	if h.Destroyed() {
		return newError(op, ErrDestroyed, nil)
	}
	if h.registry == nil || token.IsZero() {
		return newError(op, ErrMissingConfiguration, fmt.Errorf("no backing token for %v", h.owner))
	}
	h.registry.Inject(providers...)
	h.introduced[token] = struct{}{}
	h.invalidateLocked()
	return nil
}

// Invalidate drops every cached chain and the resolved guards. Call it when a
// registry feeding this handler changed behind its back, e.g. a parent type
// resolver.
func (h *GuardedHandler) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalidateLocked()
}

func (h *GuardedHandler) invalidateLocked() {
	h.core = nil
	h.shared = nil
	h.typed = map[string]Handler{}
	h.exceptions = map[string]Handler{}
	h.guards = nil
	h.guardsReady = false
}

// ==========================================
// 执行引擎 (Invocation)
// ==========================================

// Handle runs one invocation. A nil ctx gets a fresh background context.
// After Destroy, or when the handler's limit is spent, nothing runs.
func (h *GuardedHandler) Handle(ctx *Context, in any) *Future[any] {
	if ctx == nil {
		ctx = NewContext(context.Background(), nil)
	}
	if h.Destroyed() {
		return CancelledFuture[any]()
	}
	if h.spent() || (h.opts.completion != nil && h.opts.completion(ctx)) {
		return CompletedFuture[any](nil, nil)
	}
	return runCancellable(ctx.Parent(), h.stop, func(c context.Context) (any, error) {
		return h.invoke(ctx.Derive(c), in)
	})
}

// Invoke is Handle followed by Await.
func (h *GuardedHandler) Invoke(ctx context.Context, in any) (any, error) {
	return h.Handle(NewContext(ctx, nil), in).Await()
}

func (h *GuardedHandler) invoke(ctx *Context, in any) (any, error) {
	for i, g := range h.resolveGuards() {
		ok, err := g.CanActivate(ctx, in)
		if err != nil {
			return nil, err
		}
		if !ok {
			h.log.Debug("guard rejected invocation", zapOwner(h.owner), zap.Int("guard", i))
			return nil, &ForbiddenError{Guard: i}
		}
	}
	if !h.takeSlot() {
		return nil, nil
	}

	chain := h.chainForInput(in)
	if chain == nil {
		return nil, newError("Handle", ErrDestroyed, nil)
	}
	out, err := chain.Handle(ctx, in)
	if err != nil {
		return nil, err
	}
	if u, ok := AsUnhandled(out); ok {
		return nil, u.Err
	}
	return out, nil
}

func (h *GuardedHandler) spent() bool {
	if h.opts.limit <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remaining <= 0
}

func (h *GuardedHandler) takeSlot() bool {
	if h.opts.limit <= 0 {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remaining <= 0 {
		return false
	}
	h.remaining--
	return true
}

func (h *GuardedHandler) resolveGuards() []Guard {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.guardsReady {
		h.guards = Resolve(h.registry, h.tokens.Guards, AsGuard)
		h.guardsReady = true
	}
	return h.guards
}

func (h *GuardedHandler) chainForInput(in any) Handler {
	if h.opts.typeKey != nil {
		if key := h.opts.typeKey(in); key != nil {
			return h.ChainFor(key)
		}
	}
	return h.SharedChain()
}

// SharedChain returns the cached chain every input goes through, building it
// on first use.
func (h *GuardedHandler) SharedChain() Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend == nil {
		return nil
	}
	return h.sharedLocked()
}

// coreLocked is the shared chain without the exception dispatcher.
func (h *GuardedHandler) coreLocked() Handler {
	if h.core == nil {
		filters := Resolve(h.registry, h.tokens.Filters, AsFilter)
		interceptors := Resolve(h.registry, h.tokens.Interceptors, AsInterceptor)
		h.core = Compose(filters, interceptors, h.backend)
		h.log.Debug("chain built", zapOwner(h.owner),
			zap.Int("filters", len(filters)), zap.Int("interceptors", len(interceptors)))
	}
	return h.core
}

func (h *GuardedHandler) withCatch(next Handler) Handler {
	if h.catch == nil {
		return next
	}
	return &node{next: next, modifier: h.catch}
}

// ChainFor returns the chain for inputs keyed by key: type-scoped filters and
// interceptors layered over the shared chain. Keys without overrides reuse the
// shared chain, and that outcome is cached too.
func (h *GuardedHandler) ChainFor(key any) Handler {
	k := keyString(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.backend == nil {
		return nil
	}
	if override, ok := h.typed[k]; ok {
		if override != nil {
			return override
		}
		return h.sharedLocked()
	}

	var filters []Filter
	var interceptors []Interceptor
	if h.resolver != nil {
		filters = h.resolver.Filters(key)
		interceptors = h.resolver.Interceptors(key)
	}
	if len(filters) == 0 && len(interceptors) == 0 {
		h.typed[k] = nil
		return h.sharedLocked()
	}
	override := h.withCatch(Compose(filters, interceptors, h.coreLocked()))
	h.typed[k] = override
	return override
}

func (h *GuardedHandler) sharedLocked() Handler {
	if h.shared == nil {
		h.shared = h.withCatch(h.coreLocked())
	}
	return h.shared
}

// exceptionChain returns the exception-filter chain for err, or nil when no
// handler is registered for any of its keys.
func (h *GuardedHandler) exceptionChain(err error) Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registry == nil {
		return nil
	}
	for _, k := range exceptionKeys(err, h.opts.policy) {
		if chain, ok := h.exceptions[k]; ok {
			if chain != nil {
				return chain
			}
			continue
		}
		handlers := Resolve(h.registry, TokenFor(h.owner, PurposeExceptions, k), AsExceptionHandler)
		if len(handlers) == 0 {
			h.exceptions[k] = nil
			continue
		}
		filters := Resolve(h.registry, h.tokens.ExceptionFilters, AsFilter)
		chain := Compose(filters, nil, dispatch(handlers))
		h.exceptions[k] = chain
		return chain
	}
	return nil
}

// ==========================================
// 生命周期 (Lifecycle)
// ==========================================

// Destroy cancels in-flight invocations, unregisters every token the handler
// introduced and clears its caches. It is idempotent.
func (h *GuardedHandler) Destroy() {
	h.destroy.Do(func() {
		close(h.stop)
		h.mu.Lock()
		defer h.mu.Unlock()
		for t := range h.introduced {
			h.registry.Unregister(t)
		}
		h.log.Debug("handler destroyed", zapOwner(h.owner), zap.Int("tokens", len(h.introduced)))
		h.introduced = map[Token]struct{}{}
		h.invalidateLocked()
		h.registry = nil
		h.resolver = nil
		h.backend = nil
	})
}

// Destroyed reports whether Destroy ran.
func (h *GuardedHandler) Destroyed() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

func zapOwner(owner any) zap.Field { return zap.String("owner", fmt.Sprint(owner)) }

func zapErr(err error) zap.Field { return zap.Error(err) }
