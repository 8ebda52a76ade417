package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"gnest/internal/kernel"
	"gnest/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ==========================================
// 生命周期钩子 (Lifecycle hooks)
// ==========================================

// 启动：Init 先对全部 provider 调用 OnModuleInit，再调用 OnApplicationBootstrap
type OnModuleInit interface{ OnModuleInit() }
type OnApplicationBootstrap interface{ OnApplicationBootstrap() }

// 关闭：见 Shutdown 的调用顺序
type OnModuleDestroy interface{ OnModuleDestroy() }
type BeforeApplicationShutdown interface{ BeforeApplicationShutdown(sig string) }
type OnApplicationShutdown interface{ OnApplicationShutdown() }

// Route 一条路由及其专属的 GuardedHandler
type Route struct {
	Method  string
	Path    string
	Handler *kernel.GuardedHandler
}

// ==========================================
// 应用 (App)
// ==========================================

type App struct {
	Engine *gin.Engine
	RouterGroup

	registry   kernel.Registry
	validate   *validator.Validate
	log        *zap.Logger
	policy     kernel.MatchPolicy
	providers  map[reflect.Type]reflect.Value
	container  []any // 用于扫描生命周期钩子
	decorators map[reflect.Type]func(ctx *kernel.Context) (any, error)

	mu       sync.Mutex
	routes   []*Route
	server   *http.Server
	booted   bool
	shutdown bool
}

type Option func(*App)

func WithLogger(l *zap.Logger) Option { return func(a *App) { a.log = l } }

func WithRegistry(r kernel.Registry) Option { return func(a *App) { a.registry = r } }

func WithValidator(v *validator.Validate) Option { return func(a *App) { a.validate = v } }

func WithExceptionPolicy(p kernel.MatchPolicy) Option { return func(a *App) { a.policy = p } }

// WithEngine 使用外部创建的 gin.Engine，默认 gin.New()
func WithEngine(e *gin.Engine) Option { return func(a *App) { a.Engine = e } }

func New(opts ...Option) *App {
	app := &App{
		providers:  map[reflect.Type]reflect.Value{},
		decorators: map[reflect.Type]func(ctx *kernel.Context) (any, error){},
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.Engine == nil {
		app.Engine = gin.New()
	}
	if app.registry == nil {
		app.registry = kernel.NewRegistry()
	}
	if app.validate == nil {
		app.validate = validator.New()
	}
	if app.log == nil {
		app.log = zap.NewNop()
	}
	app.RouterGroup = RouterGroup{app: app, ginGroup: &app.Engine.RouterGroup}
	return app
}

// Provide 注册依赖：按类型注入到处理函数参数，并参与生命周期钩子
func (app *App) Provide(ps ...any) *App {
	for _, p := range ps {
		app.providers[reflect.TypeOf(p)] = reflect.ValueOf(p)
		app.container = append(app.container, p)
	}
	return app
}

// Decorate 注册自定义参数装饰器，处理函数中类型为 t 的参数由 factory 产生
func (app *App) Decorate(t reflect.Type, factory func(ctx *kernel.Context) (any, error)) *App {
	app.decorators[t] = factory
	return app
}

// 全局增强器设置
func (app *App) UseGlobalGuards(gs ...any) *App {
	app.UseGuards(gs...)
	return app
}
func (app *App) UseGlobalInterceptors(is ...any) *App {
	app.UseInterceptors(is...)
	return app
}
func (app *App) UseGlobalFilters(fs ...any) *App {
	app.UseFilters(fs...)
	return app
}
func (app *App) UseGlobalExceptionHandlers(key any, hs ...any) *App {
	app.UseExceptionHandlers(key, hs...)
	return app
}

// SetHTMLTemplate 支持多模板引擎
func (app *App) SetHTMLTemplate(templ *template.Template) *App {
	app.Engine.SetHTMLTemplate(templ)
	return app
}

// Static 静态目录托管
func (app *App) Static(relativePath, root string) *App {
	app.Engine.Static(relativePath, root)
	return app
}

// NoRoute 自定义 404
func (app *App) NoRoute(h gin.HandlerFunc) *App {
	app.Engine.NoRoute(h)
	return app
}

func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.Engine.ServeHTTP(w, r)
}

// Routes 返回已注册的路由
func (app *App) Routes() []*Route {
	app.mu.Lock()
	defer app.mu.Unlock()
	return append([]*Route(nil), app.routes...)
}

// ==========================================
// 执行引擎 (Core Engine)
// ==========================================

func (app *App) newRoute(rg *RouterGroup, method, relativePath string, handler any, enhancers []any) (*Route, error) {
	backend, err := app.backendFor(handler)
	if err != nil {
		return nil, err
	}
	mods, err := collect(enhancers)
	if err != nil {
		return nil, err
	}

	full := joinPaths(rg.ginGroup.BasePath(), relativePath)
	owner := method + " " + full
	h := kernel.NewGuardedHandler(owner, backend,
		kernel.WithRegistry(app.registry),
		kernel.WithExceptionPolicy(app.policy),
		kernel.WithLogger(app.log.Named("kernel")),
	)
	if err := apply(h, append(rg.scopes(), mods)); err != nil {
		h.Destroy()
		return nil, err
	}

	route := &Route{Method: method, Path: full, Handler: h}
	app.mu.Lock()
	app.routes = append(app.routes, route)
	app.mu.Unlock()
	return route, nil
}

func (app *App) serve(route *Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		if route.Handler.Destroyed() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				response.New(http.StatusServiceUnavailable, "server is shutting down"))
			return
		}
		ctx := kernel.NewContext(c.Request.Context(), c)
		defer ctx.Destroy()
		res, err := route.Handler.Handle(ctx, c).Await()
		app.respond(c, res, err)
	}
}

// ==========================================
// 生命周期逻辑 (Lifecycle)
// ==========================================

// Init 依次调用 OnModuleInit 与 OnApplicationBootstrap，只执行一次
func (app *App) Init() {
	app.mu.Lock()
	if app.booted {
		app.mu.Unlock()
		return
	}
	app.booted = true
	app.mu.Unlock()

	for _, p := range app.container {
		if h, ok := p.(OnModuleInit); ok {
			h.OnModuleInit()
		}
	}
	for _, p := range app.container {
		if h, ok := p.(OnApplicationBootstrap); ok {
			h.OnApplicationBootstrap()
		}
	}
}

// Start 启动监听并在后台处理请求，返回实际监听地址
func (app *App) Start(addr string) (net.Addr, error) {
	app.Init()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: app.Engine, ReadHeaderTimeout: 10 * time.Second}
	app.mu.Lock()
	app.server = srv
	app.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Error("serve failed", zap.Error(err))
		}
	}()
	app.log.Info("server started", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// Shutdown 销毁序列：OnModuleDestroy -> BeforeApplicationShutdown -> 关闭服务
// -> 销毁所有路由 Handler -> OnApplicationShutdown
func (app *App) Shutdown(ctx context.Context, sig string) error {
	app.mu.Lock()
	if app.shutdown {
		app.mu.Unlock()
		return nil
	}
	app.shutdown = true
	srv := app.server
	routes := append([]*Route(nil), app.routes...)
	app.mu.Unlock()

	for _, p := range app.container {
		if h, ok := p.(OnModuleDestroy); ok {
			h.OnModuleDestroy()
		}
	}
	for _, p := range app.container {
		if h, ok := p.(BeforeApplicationShutdown); ok {
			h.BeforeApplicationShutdown(sig)
		}
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, r := range routes {
		r.Handler.Destroy()
	}

	for _, p := range app.container {
		if h, ok := p.(OnApplicationShutdown); ok {
			h.OnApplicationShutdown()
		}
	}
	app.log.Info("shutdown finished", zap.Int("routes", len(routes)))
	return err
}

// Run 启动服务并阻塞到 SIGINT/SIGTERM，然后优雅退出
func (app *App) Run(addr string, grace time.Duration) error {
	if _, err := app.Start(addr); err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	sig := <-stop

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return app.Shutdown(ctx, sig.String())
}

func zapRoute(c *gin.Context) zap.Field {
	return zap.String("route", c.Request.Method+" "+c.FullPath())
}

func zapError(err error) zap.Field { return zap.Error(err) }
