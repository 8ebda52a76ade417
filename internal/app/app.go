package app

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"gnest/internal/config"
	"gnest/internal/domain/incident"
	"gnest/internal/domain/user"
	"gnest/internal/events"
	"gnest/internal/infra/logger"
	"gnest/internal/interfaces/filters"
	"gnest/internal/interfaces/guards"
	"gnest/internal/interfaces/handlers"
	"gnest/internal/interfaces/interceptors"
	"gnest/internal/interfaces/middlewares"
	"gnest/internal/kernel"
	"gnest/internal/pkg/token"
	"gnest/internal/router"
	httpx "gnest/internal/transport/http"
	kafkasub "gnest/internal/transport/kafka"
	"gnest/internal/transport/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// UsersTopic 用户领域事件发布到的主题
	UsersTopic = "users"

	archiveExpiry = time.Hour
)

type App struct {
	Config     *config.Config
	Logger     *logger.LoggerService
	Infra      *Infra
	HTTP       *httpx.App
	Bus        *events.Bus
	Gateway    *ws.Gateway
	Subscriber *kafkasub.Subscriber
	Users      *user.UserService
	Issuer     *token.Issuer
	Recorder   *incident.Recorder

	log    *zap.Logger
	cancel context.CancelFunc
}

// Setup 按配置组装整个应用，外部依赖按 Enabled 开关接入
func Setup(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := kernel.ParseMatchPolicy(cfg.Kernel.ExceptionMatch)
	if err != nil {
		return nil, err
	}
	ls, err := logger.NewLoggerService(logger.Options{Dir: cfg.Log.Dir, Env: cfg.Log.Env})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	audit, err := logger.NewAuditLogger(cfg.Log.AuditDir, nil)
	if err != nil {
		return nil, fmt.Errorf("audit logger: %w", err)
	}

	in, err := OpenInfra(ctx, cfg, ls.Named("infra"))
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: ls, Infra: in, log: ls.Log}
	if err := a.build(ctx, policy, audit); err != nil {
		_ = in.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, policy kernel.MatchPolicy, audit *logrus.Logger) error {
	cfg := a.Config
	registry := kernel.NewRegistry()

	// 1. 领域服务
	var repo user.Repository = user.NewMemoryRepository()
	if a.Infra.PgSQL != nil {
		if err := a.migrate(ctx); err != nil {
			return err
		}
		repo = user.NewUserRepository(a.Infra.PgSQL.DB)
	}
	a.Issuer = token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer)
	a.Users = user.NewUserService(repo, a.Issuer, cfg.JWT.TTL, cfg.JWT.RefreshTTL)

	// 2. 异常记录
	incidents, err := a.incidentSinks(ctx, audit)
	if err != nil {
		return err
	}

	// 3. 协议层
	a.Bus = events.New(
		events.WithLogger(a.log.Named("events")),
		events.WithExceptionPolicy(policy),
	)
	a.Gateway = ws.New(
		ws.WithLogger(a.log.Named("ws")),
		ws.WithRegistry(registry),
		ws.WithExceptionPolicy(policy),
	)
	subOpts := []kafkasub.Option{
		kafkasub.WithLogger(a.log.Named("kafka")),
		kafkasub.WithRegistry(registry),
		kafkasub.WithExceptionPolicy(policy),
	}
	if a.Infra.Producer != nil {
		subOpts = append(subOpts, kafkasub.WithDLQ(a.Infra.Producer.Sync, cfg.Kafka.DLQSuffix))
	}
	a.Subscriber = kafkasub.NewSubscriber(subOpts...)

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(middlewares.CORS(), middlewares.Recovery(a.log.Named("http")))
	a.HTTP = httpx.New(
		httpx.WithEngine(engine),
		httpx.WithRegistry(registry),
		httpx.WithLogger(a.log.Named("http")),
		httpx.WithExceptionPolicy(policy),
	)

	// 4. 全局增强器：关联 ID 最外层，超时最内层
	a.HTTP.UseGlobalInterceptors(
		interceptors.Correlation(),
		interceptors.Logging(a.log.Named("access")),
		interceptors.Recover(),
	)
	if cfg.Kernel.DefaultTimeout > 0 {
		a.HTTP.UseGlobalInterceptors(interceptors.Timeout(cfg.Kernel.DefaultTimeout))
	}
	a.Recorder = &incident.Recorder{
		Owner:     "http",
		Sinks:     incidents.sinks,
		Log:       a.log.Named("incident"),
		Classify:  filters.StatusOf,
		Correlate: interceptors.CorrelationID,
	}
	a.HTTP.UseGlobalExceptionHandlers(kernel.AnyException, a.Recorder, filters.HTTPException(0))
	a.HTTP.UseGlobalExceptionHandlers("Conflict", filters.HTTPException(409))
	a.HTTP.Decorate(reflect.TypeOf(&token.Claims{}), func(ctx *kernel.Context) (any, error) {
		claims, ok := guards.ClaimsFrom(ctx)
		if !ok {
			return nil, guards.ErrUnauthorized
		}
		return claims, nil
	})

	// 5. 路由
	deps := router.Deps{
		Issuer: a.Issuer,
		Users:  handlers.NewUserHandler(a.Users, a.Bus),
		Incidents: &handlers.IncidentHandler{
			Store:         incidents.store,
			Search:        incidents.search,
			Archive:       incidents.archive,
			ArchiveExpiry: archiveExpiry,
		},
	}
	if a.Infra.Redis != nil {
		deps.Limiter = guards.RateLimit(a.Infra.Redis, cfg.RateLimit.Limit, cfg.RateLimit.Window, nil).
			WithPrefix("ratelimit:auth:")
		deps.Cache = interceptors.Cache(a.Infra.Redis, cfg.Redis.CacheTTL, nil)
	}
	router.Setup(a.HTTP, deps)
	a.HTTP.Engine.GET("/ws", gin.WrapH(a.Gateway))

	// 6. 事件流转：注册事件 -> Kafka (启用时) -> WebSocket 广播
	if err := a.wireEvents(); err != nil {
		return err
	}

	// App 排在最前，关闭时先停消费者
	a.HTTP.Provide(a, a.Gateway, a.Bus, a.Subscriber)
	return nil
}

// migrate 在同一个事务里建表，失败时全部回滚
func (a *App) migrate(ctx context.Context) error {
	return a.Infra.PgSQL.Transaction(ctx, func(tx *gorm.DB) error {
		if err := user.NewUserRepository(tx).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate users: %w", err)
		}
		if err := (&incident.GormSink{DB: tx}).Migrate(ctx); err != nil {
			return fmt.Errorf("migrate incidents: %w", err)
		}
		return nil
	})
}

type incidentSinks struct {
	sinks   []incident.Sink
	store   *incident.GormSink
	search  *incident.ElasticSink
	archive *incident.ArchiveSink
}

func (a *App) incidentSinks(ctx context.Context, audit *logrus.Logger) (*incidentSinks, error) {
	out := &incidentSinks{sinks: []incident.Sink{&incident.LogSink{Log: audit}}}
	if a.Infra.PgSQL != nil {
		out.store = &incident.GormSink{DB: a.Infra.PgSQL.DB}
		out.sinks = append(out.sinks, out.store)
	}
	if a.Infra.Elastic != nil {
		out.search = &incident.ElasticSink{Client: a.Infra.Elastic, Index: a.Config.Elastic.Index}
		if err := out.search.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("incident index: %w", err)
		}
		out.sinks = append(out.sinks, out.search)
	}
	if a.Infra.Minio != nil {
		out.archive = &incident.ArchiveSink{Store: a.Infra.Minio}
		out.sinks = append(out.sinks, out.archive)
	}
	return out, nil
}

func (a *App) wireEvents() error {
	producer := a.Infra.Producer
	if _, err := a.Bus.On(user.Registered{}, func(_ *kernel.Context, ev any) error {
		if producer != nil {
			return producer.Publish(UsersTopic, "registered", ev)
		}
		a.Gateway.Broadcast(events.Key(ev), ev)
		return nil
	}); err != nil {
		return err
	}

	for _, topic := range a.topics() {
		if err := a.Subscriber.Handle(topic, a.relay); err != nil {
			return err
		}
	}
	return a.Gateway.Subscribe("ping", func(m *ws.Message) (any, error) {
		return map[string]any{"pong": time.Now().UnixMilli()}, nil
	})
}

// relay 把主题消息转发给所有 WebSocket 连接，事件名为 topic.type
func (a *App) relay(_ *kernel.Context, m *kafkasub.Message) error {
	event := m.Topic
	if m.Type != "" {
		event += "." + m.Type
	}
	if !json.Valid(m.Value) {
		return fmt.Errorf("message %s/%d@%d is not valid JSON", m.Topic, m.Partition, m.Offset)
	}
	a.Gateway.Broadcast(event, json.RawMessage(m.Value))
	return nil
}

func (a *App) topics() []string {
	topics := append([]string(nil), a.Config.Kafka.Topics...)
	for _, t := range topics {
		if t == UsersTopic {
			return topics
		}
	}
	return append(topics, UsersTopic)
}

// OnApplicationBootstrap 启动 Kafka 消费
func (a *App) OnApplicationBootstrap() {
	if a.Infra.Consumer == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Infra.Consumer.Consume(ctx, a.Subscriber.Topics(), a.Subscriber)
	a.log.Info("kafka consuming", zap.Strings("topics", a.Subscriber.Topics()))
}

// OnModuleDestroy 在处理器销毁前停止拉取消息
func (a *App) OnModuleDestroy() {
	if a.cancel != nil {
		a.cancel()
	}
	if c := a.Infra.Consumer; c != nil {
		a.Infra.Consumer = nil
		if err := c.Close(); err != nil {
			a.log.Warn("close kafka consumer", zap.Error(err))
		}
	}
}

// OnApplicationShutdown 释放剩余外部连接
func (a *App) OnApplicationShutdown() {
	if err := a.Infra.Close(); err != nil {
		a.log.Warn("close infra", zap.Error(err))
	}
	a.Logger.Sync()
}

// Run 监听 Server.Port 直到收到退出信号
func (a *App) Run(grace time.Duration) error {
	return a.HTTP.Run(fmt.Sprintf("0.0.0.0:%d", a.Config.Server.Port), grace)
}
