package router

import (
	"gnest/internal/interfaces/guards"
	httpx "gnest/internal/transport/http"
)

func setupAuthRouter(app *httpx.App, d Deps) {
	auth := app.Group("/auth")
	{
		// 注册和登录按 IP 限流
		auth.UseGuards(optional(d.Limiter)...)
		auth.POST("/register", d.Users.Register)
		auth.POST("/login", d.Users.Login)
		auth.POST("/refresh-token", d.Users.RefreshToken)
	}

	// 鉴权守卫排在最前，Claims 由参数装饰器注入
	app.GET("/me", d.Users.Me, guards.Auth(d.Issuer))
}
