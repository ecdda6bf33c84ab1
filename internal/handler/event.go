package handler // host-facing event CRUD

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// HostHandler bundles dependencies for host endpoints.
type HostHandler struct {
	Events        *repository.EventRepo
	Registrations *repository.RegistrationRepo
}

func NewHostHandler(e *repository.EventRepo, r *repository.RegistrationRepo) *HostHandler {
	return &HostHandler{Events: e, Registrations: r}
}

type eventReq struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    uint32    `json:"capacity"`
	FeeCents    uint32    `json:"fee_cents"`
}

func (r *eventReq) validate() string {
	r.Title = strings.TrimSpace(r.Title)
	r.Venue = strings.TrimSpace(r.Venue)
	switch {
	case r.Title == "":
		return "title is required"
	case r.Venue == "":
		return "venue is required"
	case r.StartsAt.IsZero() || r.EndsAt.IsZero():
		return "starts_at and ends_at are required"
	case !r.EndsAt.After(r.StartsAt):
		return "ends_at must be after starts_at"
	}
	return ""
}

// CreateEvent handles POST /v1/host/events. New events enter the approval
// queue as PENDING.
func (h *HostHandler) CreateEvent(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ev := &model.Event{
		HostID:      ident.ID,
		Title:       req.Title,
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Venue:       req.Venue,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Capacity:    req.Capacity,
		FeeCents:    req.FeeCents,
	}
	if err := h.Events.Create(c.Request().Context(), ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create event"})
	}
	return c.JSON(http.StatusCreated, ev)
}

// ListEvents handles GET /v1/host/events and returns the host's own events
// in every workflow state.
func (h *HostHandler) ListEvents(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Events.ListByHost(c.Request().Context(), ident.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UpdateEvent handles PUT /v1/host/events/:id. Edits send the event back to
// PENDING for re-review.
func (h *HostHandler) UpdateEvent(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ev := &model.Event{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Venue:       req.Venue,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Capacity:    req.Capacity,
		FeeCents:    req.FeeCents,
	}
	if err := h.Events.Update(c.Request().Context(), ev, ident.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	updated, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteEvent handles DELETE /v1/host/events/:id, removing the event and
// its registrations.
func (h *HostHandler) DeleteEvent(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.Events.Delete(c.Request().Context(), id, ident.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAttendees handles GET /v1/host/events/:id/registrations for the
// host's own event.
func (h *HostHandler) ListAttendees(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	items, err := h.Registrations.ListByEvent(c.Request().Context(), id, ident.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, repository.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
