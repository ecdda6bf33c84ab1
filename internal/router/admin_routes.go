package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// RegisterAdmin registers the review workflow and the account/donation
// browsers under /v1/admin. Administrator role required throughout.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, ids repository.IdentityStore) {
	g := e.Group(
		"/v1/admin",
		middleware.Authenticate(jwtSecret, ids),
		middleware.RequireRole(string(model.RoleAdmin)),
	)

	g.GET("/events", h.ListEvents)
	g.POST("/events/:id/approve", h.Approve)
	g.POST("/events/:id/reject", h.Reject)
	g.GET("/identities", h.ListIdentities)
	g.GET("/donations", h.ListDonations)
	g.GET("/subscribers", h.ListSubscribers)
}
