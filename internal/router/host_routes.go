package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// RegisterHost registers host-scoped event management under /v1/host.
// All routes require a valid access token and the host role.
func RegisterHost(e *echo.Echo, h *handler.HostHandler, jwtSecret string, ids repository.IdentityStore) {
	g := e.Group(
		"/v1/host",
		middleware.Authenticate(jwtSecret, ids),
		middleware.RequireRole(string(model.RoleHost)),
	)

	g.POST("/events", h.CreateEvent)
	g.GET("/events", h.ListEvents)
	g.PUT("/events/:id", h.UpdateEvent)
	g.PATCH("/events/:id", h.UpdateEvent) // partial updates go through the same handler
	g.DELETE("/events/:id", h.DeleteEvent)
	g.GET("/events/:id/registrations", h.ListAttendees)
}
