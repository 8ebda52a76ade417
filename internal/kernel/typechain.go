package kernel

// TypeResolver supplies the filters and interceptors scoped to one input key
// (a reflect.Type or a string).
type TypeResolver interface {
	Filters(key any) []Filter
	Interceptors(key any) []Interceptor
}

// RegistryTypeResolver reads type-scoped modifiers from a Registry under
// tokens owned by owner. A parent resolver, if any, contributes the outer
// layer of every lookup.
type RegistryTypeResolver struct {
	registry Registry
	owner    any
	parent   TypeResolver
}

// NewTypeResolver creates a resolver over reg for owner.
func NewTypeResolver(reg Registry, owner any, parent TypeResolver) *RegistryTypeResolver {
	return &RegistryTypeResolver{registry: reg, owner: owner, parent: parent}
}

func (r *RegistryTypeResolver) token(p Purpose, key any) Token {
	return TokenFor(r.owner, p, keyString(key))
}

// Filters returns parent filters followed by the local ones for key.
func (r *RegistryTypeResolver) Filters(key any) []Filter {
	var out []Filter
	if r.parent != nil {
		out = append(out, r.parent.Filters(key)...)
	}
	return append(out, Resolve(r.registry, r.token(PurposeTypeFilters, key), AsFilter)...)
}

// Interceptors returns parent interceptors followed by the local ones for key.
func (r *RegistryTypeResolver) Interceptors(key any) []Interceptor {
	var out []Interceptor
	if r.parent != nil {
		out = append(out, r.parent.Interceptors(key)...)
	}
	return append(out, Resolve(r.registry, r.token(PurposeTypeInterceptors, key), AsInterceptor)...)
}

// UseFilters registers filters for key directly on the resolver.
func (r *RegistryTypeResolver) UseFilters(key any, filters ...any) error {
	return r.inject(PurposeTypeFilters, key, filters, func(v any) (any, error) { return AsFilter(v) })
}

// UseInterceptors registers interceptors for key directly on the resolver.
func (r *RegistryTypeResolver) UseInterceptors(key any, interceptors ...any) error {
	return r.inject(PurposeTypeInterceptors, key, interceptors, func(v any) (any, error) { return AsInterceptor(v) })
}

func (r *RegistryTypeResolver) inject(p Purpose, key any, values []any, conv func(any) (any, error)) error {
	providers := make([]Provider, 0, len(values))
	for _, v := range values {
		m, err := conv(v)
		if err != nil {
			return newError("TypeResolver.Use", ErrInvalidModifier, err)
		}
		providers = append(providers, Provider{Token: r.token(p, key), Value: m})
	}
	if len(providers) > 0 {
		r.registry.Inject(providers...)
	}
	return nil
}

// Release unregisters the modifiers stored for the given keys.
func (r *RegistryTypeResolver) Release(keys ...any) {
	for _, k := range keys {
		r.registry.Unregister(r.token(PurposeTypeFilters, k))
		r.registry.Unregister(r.token(PurposeTypeInterceptors, k))
	}
}
