package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// RegisterParticipant registers event-registration endpoints under
// /v1/user. Participant role required.
func RegisterParticipant(e *echo.Echo, h *handler.ParticipantHandler, jwtSecret string, ids repository.IdentityStore) {
	g := e.Group(
		"/v1/user",
		middleware.Authenticate(jwtSecret, ids),
		middleware.RequireRole(string(model.RoleUser)),
	)

	g.POST("/events/:id/register", h.RegisterForEvent)
	g.DELETE("/events/:id/register", h.CancelRegistration)
	g.GET("/registrations", h.MyRegistrations)
}
