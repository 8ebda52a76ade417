package router

import (
	"gnest/internal/interfaces/guards"
	"gnest/internal/interfaces/handlers"
	"gnest/internal/kernel"
	"gnest/internal/pkg/token"
	httpx "gnest/internal/transport/http"
)

// Deps 路由需要的控制器和增强器，Limiter 与 Cache 为 nil 时不启用
type Deps struct {
	Issuer    *token.Issuer
	Users     *handlers.UserHandler
	Incidents *handlers.IncidentHandler
	Limiter   *guards.RateLimitGuard
	Cache     kernel.Interceptor
}

func Setup(app *httpx.App, d Deps) {
	setupAuthRouter(app, d)
	setupIncidentRouter(app, d)
}

// optional 过滤掉未启用的增强器
func optional(enhancers ...any) []any {
	out := make([]any, 0, len(enhancers))
	for _, e := range enhancers {
		switch v := e.(type) {
		case nil:
		case *guards.RateLimitGuard:
			if v != nil {
				out = append(out, v)
			}
		default:
			out = append(out, e)
		}
	}
	return out
}
