package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gnest/internal/interfaces/filters"
	"gnest/internal/kernel"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("gateway closed")

const maxMessageSize = 1 << 20

type Option func(*Gateway)

func WithLogger(l *zap.Logger) Option { return func(g *Gateway) { g.log = l } }

func WithRegistry(r kernel.Registry) Option { return func(g *Gateway) { g.registry = r } }

func WithExceptionPolicy(p kernel.MatchPolicy) Option { return func(g *Gateway) { g.policy = p } }

// WithCheckOrigin 默认接受任意 Origin
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(g *Gateway) { g.upgrader.CheckOrigin = fn }
}

// Gateway 把 {"event","data"} 帧分发给每个事件专属的 GuardedHandler
type Gateway struct {
	upgrader websocket.Upgrader
	registry kernel.Registry
	log      *zap.Logger
	policy   kernel.MatchPolicy

	guards       []any
	interceptors []any

	mu       sync.RWMutex
	handlers map[string]*kernel.GuardedHandler
	closed   bool
	clients  sync.Map // *Client -> struct{}
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		handlers: map[string]*kernel.GuardedHandler{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = kernel.NewRegistry()
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	return g
}

// UseGuards 对之后订阅的所有事件生效
func (g *Gateway) UseGuards(gs ...any) *Gateway {
	g.guards = append(g.guards, gs...)
	return g
}

// UseInterceptors 对之后订阅的所有事件生效
func (g *Gateway) UseInterceptors(is ...any) *Gateway {
	g.interceptors = append(g.interceptors, is...)
	return g
}

// Subscribe 注册事件处理器。handler 可以是 kernel.Handler、
// func(*kernel.Context, *Message) (any, error) 或 func(*Message) (any, error)；
// modifiers 按类型归类为 guard / interceptor / exception handler (匹配全部异常)
func (g *Gateway) Subscribe(event string, handler any, modifiers ...any) error {
	backend, err := asBackend(handler)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if _, ok := g.handlers[event]; ok {
		return fmt.Errorf("event %q already subscribed", event)
	}

	h := kernel.NewGuardedHandler("ws:"+event, backend,
		kernel.WithRegistry(g.registry),
		kernel.WithExceptionPolicy(g.policy),
		kernel.WithLogger(g.log.Named("kernel")),
	)
	errs := []error{h.UseGuards(g.guards...), h.UseInterceptors(g.interceptors...)}
	for _, m := range modifiers {
		switch v := m.(type) {
		case kernel.Guard:
			errs = append(errs, h.UseGuards(v))
		case kernel.Interceptor:
			errs = append(errs, h.UseInterceptors(v))
		case kernel.ExceptionHandler:
			errs = append(errs, h.UseExceptionHandlers(kernel.AnyException, v))
		default:
			errs = append(errs, fmt.Errorf("%w: %T", kernel.ErrInvalidModifier, m))
		}
	}
	if err := errors.Join(errs...); err != nil {
		h.Destroy()
		return err
	}
	g.handlers[event] = h
	return nil
}

func asBackend(handler any) (kernel.Handler, error) {
	switch h := handler.(type) {
	case kernel.Handler:
		return h, nil
	case func(*kernel.Context, *Message) (any, error):
		return kernel.HandlerFunc(func(ctx *kernel.Context, in any) (any, error) {
			return h(ctx, in.(*Message))
		}), nil
	case func(*Message) (any, error):
		return kernel.HandlerFunc(func(_ *kernel.Context, in any) (any, error) {
			return h(in.(*Message))
		}), nil
	}
	return nil, fmt.Errorf("%w: %T is not a ws handler", kernel.ErrInvalidModifier, handler)
}

// Handler 返回事件的 GuardedHandler
func (g *Gateway) Handler(event string) (*kernel.GuardedHandler, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.handlers[event]
	return h, ok
}

// ServeHTTP 升级连接并处理客户端消息
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("handshake failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)
	client := newClient(conn)
	g.clients.Store(client, struct{}{})
	defer func() {
		g.clients.Delete(client)
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Debug("read failed", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}
		g.dispatch(r, client, raw)
	}
}

func (g *Gateway) dispatch(r *http.Request, client *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		g.sendException(client, "invalid frame")
		return
	}
	h, ok := g.Handler(frame.Event)
	if !ok {
		g.sendException(client, fmt.Sprintf("unknown event %q", frame.Event))
		return
	}

	msg := &Message{Event: frame.Event, Data: frame.Data, Client: client}
	ctx := kernel.NewContext(r.Context(), msg)
	defer ctx.Destroy()
	out, err := h.Handle(ctx, msg).Await()
	switch {
	case err != nil:
		g.sendException(client, filters.Body(err).Message)
	case out == nil:
	default:
		if e, ok := out.(error); ok {
			g.sendException(client, e.Error())
			return
		}
		if err := client.Send(frame.Event, out); err != nil {
			g.log.Debug("write failed", zap.String("client", client.ID), zap.Error(err))
		}
	}
}

func (g *Gateway) sendException(client *Client, message string) {
	_ = client.Send(ExceptionEvent, map[string]string{"message": message})
}

// Broadcast 向所有连接推送一帧
func (g *Gateway) Broadcast(event string, data any) {
	g.clients.Range(func(key, _ any) bool {
		_ = key.(*Client).Send(event, data)
		return true
	})
}

// Close 销毁所有事件处理器并断开全部连接，可重复调用
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	handlers := g.handlers
	g.handlers = map[string]*kernel.GuardedHandler{}
	g.mu.Unlock()

	for _, h := range handlers {
		h.Destroy()
	}
	g.clients.Range(func(key, _ any) bool {
		key.(*Client).close(websocket.CloseGoingAway, "server shutdown")
		return true
	})
}

// OnModuleDestroy 接入 HTTP 应用的生命周期
func (g *Gateway) OnModuleDestroy() { g.Close() }
