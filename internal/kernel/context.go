package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is the execution context of one invocation. It implements
// context.Context so modifiers can hand it straight to I/O clients, and it
// carries injectable values keyed by Token.
type Context struct {
	ID  string
	Raw any // protocol payload, e.g. *gin.Context or *sarama.ConsumerMessage

	parent context.Context
	shared *Context

	mu        sync.RWMutex
	values    map[Token]any
	err       error
	onDestroy []func()
	destroyed bool
}

// NewContext 创建执行上下文
func NewContext(parent context.Context, raw any) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		ID:     uuid.NewString(),
		Raw:    raw,
		parent: parent,
		values: map[Token]any{},
	}
}

// Derive returns a view of c bound to a different cancellation parent, e.g. a
// context with a deadline. Values, the recorded error and destroy hooks stay
// shared with c.
func (c *Context) Derive(parent context.Context) *Context {
	return &Context{ID: c.ID, Raw: c.Raw, parent: parent, shared: c.root()}
}

func (c *Context) Deadline() (time.Time, bool) { return c.parent.Deadline() }
func (c *Context) Done() <-chan struct{}       { return c.parent.Done() }
func (c *Context) Err() error                  { return c.parent.Err() }

// Value looks up a Token value first and falls back to the parent context.
func (c *Context) Value(key any) any {
	if t, ok := key.(Token); ok {
		if v, ok := c.Get(t); ok {
			return v
		}
	}
	return c.parent.Value(key)
}

// Parent returns the context.Context this execution context derives from.
func (c *Context) Parent() context.Context { return c.parent }

func (c *Context) root() *Context {
	for c.shared != nil {
		c = c.shared
	}
	return c
}

// Get returns the value stored under token.
func (c *Context) Get(token Token) (any, bool) {
	r := c.root()
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[token]
	return v, ok
}

// SetValue stores a value under token.
func (c *Context) SetValue(token Token, value any) {
	r := c.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[token] = value
}

// SetError records the failure observed by the exception dispatcher.
func (c *Context) SetError(err error) {
	r := c.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Exception returns the recorded failure, if any.
func (c *Context) Exception() error {
	r := c.root()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// OnDestroy registers a callback run by Destroy. Registering on a destroyed
// context runs cb immediately.
func (c *Context) OnDestroy(cb func()) {
	r := c.root()
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		cb()
		return
	}
	r.onDestroy = append(r.onDestroy, cb)
	r.mu.Unlock()
}

// Destroy releases the context. Callbacks run once, last registered first.
func (c *Context) Destroy() {
	r := c.root()
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	cbs := r.onDestroy
	r.onDestroy = nil
	r.mu.Unlock()
	for i := len(cbs) - 1; i >= 0; i-- {
		cbs[i]()
	}
}

// Destroyed reports whether Destroy ran.
func (c *Context) Destroyed() bool {
	r := c.root()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroyed
}
