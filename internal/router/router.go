package router // package router wires HTTP routes to handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
)

// RegisterRoutes registers routes that require neither authentication nor
// repositories: currently only the health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the guest surface: the approved-event catalogue,
// newsletter subscription and donations. No JWT or role middleware applies;
// the optional cache middleware is attached in main where Redis lives.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, extra ...echo.MiddlewareFunc) {
	e.GET("/v1/events", p.ListEvents, extra...)
	e.GET("/v1/events/:id", p.GetEvent, extra...)
	e.POST("/v1/newsletter/subscribe", p.Subscribe)
	e.GET("/v1/newsletter/unsubscribe/:token", p.Unsubscribe)
	e.POST("/v1/donations", p.Donate)
}
