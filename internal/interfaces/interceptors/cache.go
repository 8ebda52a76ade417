package interceptors

import (
	"context"
	"encoding/json"
	"time"

	"gnest/internal/kernel"

	"github.com/gin-gonic/gin"
)

// Store 响应缓存存储，由 infra/redis.Client 实现
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheKeyFunc 返回空串表示跳过缓存
type CacheKeyFunc func(ctx *kernel.Context, in any) string

// RequestKey 对 GET 请求按 URL 缓存
func RequestKey(ctx *kernel.Context, _ any) string {
	c, ok := ctx.Raw.(*gin.Context)
	if !ok || c.Request == nil || c.Request.Method != "GET" {
		return ""
	}
	return "cache:" + c.Request.URL.RequestURI()
}

// Cache 命中时直接返回缓存的 JSON，不再调用 next
func Cache(store Store, ttl time.Duration, key CacheKeyFunc) kernel.InterceptorFunc {
	if key == nil {
		key = RequestKey
	}
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		k := key(ctx, in)
		if k == "" {
			return next.Handle(ctx, in)
		}
		if b, err := store.GetBytes(ctx, k); err == nil {
			return json.RawMessage(b), nil
		}

		out, err := next.Handle(ctx, in)
		if err != nil || out == nil {
			return out, err
		}
		if _, ok := kernel.AsUnhandled(out); ok {
			return out, nil
		}
		if b, mErr := json.Marshal(out); mErr == nil {
			_ = store.Set(ctx, k, b, ttl)
		}
		return out, nil
	}
}
