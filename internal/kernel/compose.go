package kernel

// node is one link of a composed chain.
type node struct {
	next     Handler
	modifier intercepter
}

func (n *node) Handle(ctx *Context, in any) (any, error) {
	return n.modifier.Intercept(ctx, in, n.next)
}

// fold wraps backend right-to-left so modifiers[0] ends up outermost.
func fold[M intercepter](modifiers []M, backend Handler) Handler {
	next := backend
	for i := len(modifiers) - 1; i >= 0; i-- {
		next = &node{next: next, modifier: modifiers[i]}
	}
	return next
}

// Compose builds filter[0] → … → interceptor[0] → … → backend. Empty lists
// return backend itself, never a pass-through node.
func Compose(filters []Filter, interceptors []Interceptor, backend Handler) Handler {
	return fold(filters, fold(interceptors, backend))
}

// Chain composes a single ordered list of interceptors around backend.
func Chain(backend Handler, interceptors ...Interceptor) Handler {
	return fold(interceptors, backend)
}
