package guards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gnest/internal/kernel"
)

// ErrRateLimited 超出窗口内的请求上限
var ErrRateLimited = errors.New("too many requests")

// Counter 固定窗口计数器，由 infra/redis.Client 实现
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// KeyFunc 计算限流维度，返回空串表示不限流
type KeyFunc func(ctx *kernel.Context, in any) string

type clientIPer interface {
	ClientIP() string
}

// ClientIP 默认按客户端 IP 限流
func ClientIP(ctx *kernel.Context, _ any) string {
	if c, ok := ctx.Raw.(clientIPer); ok {
		return c.ClientIP()
	}
	return "global"
}

type RateLimitGuard struct {
	counter Counter
	limit   int64
	window  time.Duration
	key     KeyFunc
	prefix  string
}

func RateLimit(counter Counter, limit int64, window time.Duration, key KeyFunc) *RateLimitGuard {
	if key == nil {
		key = ClientIP
	}
	return &RateLimitGuard{counter: counter, limit: limit, window: window, key: key, prefix: "ratelimit:"}
}

// WithPrefix 区分不同路由的计数
func (g *RateLimitGuard) WithPrefix(prefix string) *RateLimitGuard {
	g.prefix = prefix
	return g
}

func (g *RateLimitGuard) CanActivate(ctx *kernel.Context, in any) (bool, error) {
	if g.limit <= 0 {
		return true, nil
	}
	k := g.key(ctx, in)
	if k == "" {
		return true, nil
	}
	n, err := g.counter.IncrWindow(ctx, g.prefix+k, g.window)
	if err != nil {
		return false, err
	}
	if n > g.limit {
		return false, fmt.Errorf("%w: %d requests in %s", ErrRateLimited, n, g.window)
	}
	return true, nil
}
