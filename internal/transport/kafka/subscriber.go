package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mq "gnest/internal/infra/kafka"
	"gnest/internal/kernel"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("subscriber closed")

type Option func(*Subscriber)

func WithLogger(l *zap.Logger) Option { return func(s *Subscriber) { s.log = l } }

func WithRegistry(r kernel.Registry) Option { return func(s *Subscriber) { s.registry = r } }

func WithExceptionPolicy(p kernel.MatchPolicy) Option { return func(s *Subscriber) { s.policy = p } }

// WithDLQ 处理失败的消息转发到 <topic><suffix>
func WithDLQ(p sarama.SyncProducer, suffix string) Option {
	return func(s *Subscriber) {
		s.dlq = p
		s.dlqSuffix = suffix
	}
}

// Subscriber 实现 sarama.ConsumerGroupHandler，每个主题一个 GuardedHandler，
// 按 type 头做 per-type 分发
type Subscriber struct {
	registry  kernel.Registry
	log       *zap.Logger
	policy    kernel.MatchPolicy
	dlq       sarama.SyncProducer
	dlqSuffix string

	mu       sync.RWMutex
	handlers map[string]*kernel.GuardedHandler
	closed   bool
}

var _ sarama.ConsumerGroupHandler = (*Subscriber)(nil)

func NewSubscriber(opts ...Option) *Subscriber {
	s := &Subscriber{handlers: map[string]*kernel.GuardedHandler{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = kernel.NewRegistry()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.dlqSuffix == "" {
		s.dlqSuffix = mq.DefaultDLQSuffix
	}
	return s
}

func messageType(in any) any {
	if m, ok := in.(*Message); ok && m.Type != "" {
		return m.Type
	}
	return nil
}

// Handle 注册主题处理器。handler 可以是 kernel.Handler、
// func(*kernel.Context, *Message) error 或 func(*kernel.Context, *Message) (any, error)
func (s *Subscriber) Handle(topic string, handler any, modifiers ...any) error {
	backend, err := asBackend(handler)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.handlers[topic]; ok {
		return fmt.Errorf("topic %q already handled", topic)
	}
	h := kernel.NewGuardedHandler("kafka:"+topic, backend,
		kernel.WithRegistry(s.registry),
		kernel.WithTypeKey(messageType),
		kernel.WithExceptionPolicy(s.policy),
		kernel.WithLogger(s.log.Named("kernel")),
	)
	var errs []error
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
	s.handlers[topic] = h
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
	case func(*kernel.Context, *Message) error:
		return kernel.HandlerFunc(func(ctx *kernel.Context, in any) (any, error) {
			return nil, h(ctx, in.(*Message))
		}), nil
	}
	return nil, fmt.Errorf("%w: %T is not a kafka handler", kernel.ErrInvalidModifier, handler)
}

// UseTypeFilters 只对 type 头为 typ 的消息生效
func (s *Subscriber) UseTypeFilters(topic, typ string, filters ...any) error {
	h, ok := s.Handler(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q has no handler", kernel.ErrMissingConfiguration, topic)
	}
	return h.UseTypeFilters(typ, filters...)
}

// UseTypeInterceptors 只对 type 头为 typ 的消息生效
func (s *Subscriber) UseTypeInterceptors(topic, typ string, interceptors ...any) error {
	h, ok := s.Handler(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q has no handler", kernel.ErrMissingConfiguration, topic)
	}
	return h.UseTypeInterceptors(typ, interceptors...)
}

func (s *Subscriber) Handler(topic string) (*kernel.GuardedHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[topic]
	return h, ok
}

// Topics 返回已注册的主题，供 Consumer.Consume 使用
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]string, 0, len(s.handlers))
	for t := range s.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (s *Subscriber) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (s *Subscriber) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim 逐条处理，无论成功与否都会标记消息，失败的进入死信主题
func (s *Subscriber) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			_ = s.Process(sess.Context(), msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// Process 把一条记录交给主题处理器，失败时转发到死信主题并返回处理错误
func (s *Subscriber) Process(ctx context.Context, raw *sarama.ConsumerMessage) error {
	h, ok := s.Handler(raw.Topic)
	if !ok {
		s.log.Warn("no handler for topic", zap.String("topic", raw.Topic))
		return nil
	}
	msg := newMessage(raw)
	kctx := kernel.NewContext(ctx, raw)
	defer kctx.Destroy()

	_, err := h.Handle(kctx, msg).Await()
	if err == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("topic", raw.Topic),
		zap.Int32("partition", raw.Partition),
		zap.Int64("offset", raw.Offset),
		zap.String("type", msg.Type),
		zap.Error(err),
	}
	if kernel.IsCancelled(err) {
		s.log.Warn("message abandoned", fields...)
		return err
	}
	s.log.Error("message failed", fields...)
	if s.dlq != nil {
		if dErr := mq.SendDLQ(s.dlq, s.dlqSuffix, raw, err); dErr != nil {
			s.log.Error("dead letter failed", append(fields, zap.NamedError("dlq_error", dErr))...)
		}
	}
	return err
}

// Close 销毁所有主题处理器，可重复调用
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handlers := s.handlers
	s.handlers = map[string]*kernel.GuardedHandler{}
	s.mu.Unlock()
	for _, h := range handlers {
		h.Destroy()
	}
}

// OnModuleDestroy 接入 HTTP 应用的生命周期
func (s *Subscriber) OnModuleDestroy() { s.Close() }
