package handler // participant registration endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/repository"
)

// ParticipantHandler bundles dependencies for participant endpoints.
type ParticipantHandler struct {
	Events        *repository.EventRepo
	Registrations *repository.RegistrationRepo
}

func NewParticipantHandler(e *repository.EventRepo, r *repository.RegistrationRepo) *ParticipantHandler {
	return &ParticipantHandler{Events: e, Registrations: r}
}

// RegisterForEvent handles POST /v1/user/events/:id/register. Capacity and
// the duplicate check are enforced atomically in the repository; both
// failures surface as 409.
func (h *ParticipantHandler) RegisterForEvent(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if _, err := h.Events.GetByID(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}

	reg, err := h.Registrations.Create(c.Request().Context(), id, ident.ID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already registered or event full"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	return c.JSON(http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /v1/user/events/:id/register.
func (h *ParticipantHandler) CancelRegistration(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.Registrations.Delete(c.Request().Context(), id, ident.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "registration not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// MyRegistrations handles GET /v1/user/registrations.
func (h *ParticipantHandler) MyRegistrations(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Registrations.ListByParticipant(c.Request().Context(), ident.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
