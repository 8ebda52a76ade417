package router

import (
	"gnest/internal/interfaces/guards"
	httpx "gnest/internal/transport/http"
)

func setupIncidentRouter(app *httpx.App, d Deps) {
	incidents := app.Group("/incidents")
	incidents.UseGuards(guards.Auth(d.Issuer), guards.Roles("admin"))
	incidents.UseInterceptors(optional(d.Cache)...)
	{
		incidents.GET("", d.Incidents.List)
		incidents.GET("/search", d.Incidents.SearchIncidents)
		incidents.GET("/:id", d.Incidents.Get)
	}
}
