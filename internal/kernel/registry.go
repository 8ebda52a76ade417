package kernel

import "sync"

// Provider is one registration entry. Order nil appends; an explicit order is
// the splice index into the token's list (clamped to its bounds).
type Provider struct {
	Token Token
	Value any
	Order *int
}

// At is a helper for Provider.Order.
func At(order int) *int { return &order }

// Registry is the keyed multi-provider store the pipeline reads its modifiers
// from. Implementations must keep insertion order per token.
type Registry interface {
	Inject(providers ...Provider)
	Get(token Token, fallback []any) []any
	Has(token Token) bool
	Unregister(token Token) bool
}

// MemoryRegistry is an in-memory Registry. A token unknown locally is looked
// up in the parent, if any.
type MemoryRegistry struct {
	parent Registry

	mu      sync.RWMutex
	entries map[Token][]any
}

// NewRegistry creates an empty registry, optionally delegating to parent.
func NewRegistry(parent ...Registry) *MemoryRegistry {
	r := &MemoryRegistry{entries: map[Token][]any{}}
	if len(parent) > 0 {
		r.parent = parent[0]
	}
	return r
}

// Inject registers providers in the order given.
func (r *MemoryRegistry) Inject(providers ...Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range providers {
		list := r.entries[p.Token]
		if duplicate(list, p.Value) {
			continue
		}
		r.entries[p.Token] = splice(list, p.Value, p.Order)
	}
}

func duplicate(list []any, v any) bool {
	eq, ok := v.(Equaler)
	if !ok {
		return false
	}
	for _, existing := range list {
		if eq.Equals(existing) {
			return true
		}
	}
	return false
}

func splice(list []any, v any, order *int) []any {
	if order == nil || *order >= len(list) {
		return append(list, v)
	}
	i := *order
	if i < 0 {
		i = 0
	}
	out := make([]any, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, v)
	return append(out, list[i:]...)
}

// Get returns a copy of the providers under token, or fallback when none exist
// here or in the parent.
func (r *MemoryRegistry) Get(token Token, fallback []any) []any {
	r.mu.RLock()
	list, ok := r.entries[token]
	r.mu.RUnlock()
	if ok && len(list) > 0 {
		out := make([]any, len(list))
		copy(out, list)
		return out
	}
	if r.parent != nil {
		return r.parent.Get(token, fallback)
	}
	return fallback
}

// Has reports whether token has providers here or in the parent.
func (r *MemoryRegistry) Has(token Token) bool {
	r.mu.RLock()
	n := len(r.entries[token])
	r.mu.RUnlock()
	if n > 0 {
		return true
	}
	return r.parent != nil && r.parent.Has(token)
}

// Unregister drops every local provider of token. It is idempotent and
// reports whether anything was removed; parents are never touched.
func (r *MemoryRegistry) Unregister(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[token]
	delete(r.entries, token)
	return ok
}

// Tokens lists the locally registered tokens.
func (r *MemoryRegistry) Tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Token, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}

// Len returns the number of locally registered tokens.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve reads token from r and normalizes every entry with conv. Entries that
// fail to normalize are skipped; registration already validated them.
func Resolve[T any](r Registry, token Token, conv func(any) (T, error)) []T {
	if r == nil || token.IsZero() {
		return nil
	}
	raw := r.Get(token, nil)
	if len(raw) == 0 {
		return nil
	}
	out := make([]T, 0, len(raw))
	for _, v := range raw {
		m, err := conv(v)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}
