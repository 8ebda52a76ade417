package interceptors

import (
	"gnest/internal/kernel"

	"github.com/google/uuid"
)

const CorrelationHeader = "X-Request-ID"

var CorrelationKey = kernel.TokenFor("interceptors", kernel.PurposeInterceptors, "correlation")

type headerReadWriter interface {
	GetHeader(key string) string
	Header(key, value string)
}

// Correlation 沿用请求头中的关联 ID，没有则生成，并回写到响应头
func Correlation() kernel.InterceptorFunc {
	return func(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
		id, ok := CorrelationID(ctx)
		rw, isHTTP := ctx.Raw.(headerReadWriter)
		if !ok && isHTTP {
			id = rw.GetHeader(CorrelationHeader)
		}
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetValue(CorrelationKey, id)
		if isHTTP {
			rw.Header(CorrelationHeader, id)
		}
		return next.Handle(ctx, in)
	}
}

// CorrelationID 返回当前调用的关联 ID
func CorrelationID(ctx *kernel.Context) (string, bool) {
	v, ok := ctx.Get(CorrelationKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
