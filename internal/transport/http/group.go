package http

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// ==========================================
// 路由组与链式配置 (RouterGroup)
// ==========================================

type RouterGroup struct {
	app      *App
	parent   *RouterGroup
	ginGroup *gin.RouterGroup
	mods     modifiers
}

// Group 创建子路由组，继承父级的所有增强器
func (rg *RouterGroup) Group(prefix string, middlewares ...gin.HandlerFunc) *RouterGroup {
	return &RouterGroup{app: rg.app, parent: rg, ginGroup: rg.ginGroup.Group(prefix, middlewares...)}
}

// Use 注册 gin 中间件 (在管道之外执行)
func (rg *RouterGroup) Use(ms ...gin.HandlerFunc) *RouterGroup {
	rg.ginGroup.Use(ms...)
	return rg
}

func (rg *RouterGroup) UseGuards(gs ...any) *RouterGroup {
	rg.mods.guards = append(rg.mods.guards, gs...)
	return rg
}
func (rg *RouterGroup) UseInterceptors(is ...any) *RouterGroup {
	rg.mods.interceptors = append(rg.mods.interceptors, is...)
	return rg
}
func (rg *RouterGroup) UseFilters(fs ...any) *RouterGroup {
	rg.mods.filters = append(rg.mods.filters, fs...)
	return rg
}
func (rg *RouterGroup) UseExceptionFilters(fs ...any) *RouterGroup {
	rg.mods.exceptionFilters = append(rg.mods.exceptionFilters, fs...)
	return rg
}
func (rg *RouterGroup) UseExceptionHandlers(key any, hs ...any) *RouterGroup {
	rg.mods.exceptions = append(rg.mods.exceptions, exceptionBinding{key, hs})
	return rg
}

// scopes 返回从全局到当前组的增强器
func (rg *RouterGroup) scopes() []*modifiers {
	var out []*modifiers
	for g := rg; g != nil; g = g.parent {
		out = append([]*modifiers{&g.mods}, out...)
	}
	return out
}

// Handle 注册路由。配置错误属于编程错误，与 gin 的重复路由一样直接 panic
func (rg *RouterGroup) Handle(method, relativePath string, handler any, enhancers ...any) *Route {
	route, err := rg.app.newRoute(rg, method, relativePath, handler, enhancers)
	if err != nil {
		panic("gnest: " + method + " " + relativePath + ": " + err.Error())
	}
	rg.ginGroup.Handle(method, relativePath, rg.app.serve(route))
	return route
}

func (rg *RouterGroup) GET(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodGet, path, h, m...)
}
func (rg *RouterGroup) POST(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodPost, path, h, m...)
}
func (rg *RouterGroup) PUT(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodPut, path, h, m...)
}
func (rg *RouterGroup) PATCH(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodPatch, path, h, m...)
}
func (rg *RouterGroup) DELETE(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodDelete, path, h, m...)
}
func (rg *RouterGroup) OPTIONS(path string, h any, m ...any) *Route {
	return rg.Handle(http.MethodOptions, path, h, m...)
}

func joinPaths(base, relative string) string {
	if relative == "" {
		return base
	}
	joined := path.Join(base, relative)
	if strings.HasSuffix(relative, "/") && !strings.HasSuffix(joined, "/") {
		return joined + "/"
	}
	return joined
}
