package interceptors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gnest/internal/kernel"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggingInterceptor 记录每次调用的耗时、输入输出与错误
type LoggingInterceptor struct {
	Log *zap.Logger
	// MaxBody 请求/响应日志截断长度，0 表示 4KB
	MaxBody int
}

func Logging(log *zap.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{Log: log}
}

func (l *LoggingInterceptor) Intercept(ctx *kernel.Context, in any, next kernel.Handler) (any, error) {
	start := time.Now()
	fields := []zap.Field{zap.String("id", ctx.ID)}
	if id, ok := CorrelationID(ctx); ok {
		fields = append(fields, zap.String("correlation_id", id))
	}

	// HTTP 请求时记录 url/method/ip 与请求体
	if c, ok := ctx.Raw.(*gin.Context); ok && c.Request != nil {
		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			// 必须重新填充 Body，否则下游无法再次读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}
		fields = append(fields,
			zap.String("url", c.Request.URL.String()),
			zap.String("method", c.Request.Method),
			zap.String("ip", c.ClientIP()),
			zap.String("requestData", l.truncate(string(reqBody))),
		)
	} else if in != nil {
		fields = append(fields, zap.String("input", l.truncate(render(in))))
	}

	out, err := next.Handle(ctx, in)

	fields = append(fields, zap.String("duration", time.Since(start).String()))
	if err != nil {
		l.Log.Error("invocation failed", append(fields, zap.Error(err))...)
		return out, err
	}
	if u, ok := kernel.AsUnhandled(out); ok {
		l.Log.Error("invocation failed", append(fields, zap.Error(u.Err))...)
		return out, nil
	}
	l.Log.Info("invocation ok", append(fields, zap.String("responseData", l.truncate(render(out))))...)
	return out, nil
}

func (l *LoggingInterceptor) truncate(s string) string {
	max := l.MaxBody
	if max <= 0 {
		max = 4096
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// render 字符串原样输出，结构体或 Map 转为 JSON
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
