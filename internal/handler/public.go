package handler // unauthenticated browse, newsletter and donation endpoints

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
)

// PublicHandler serves guests: the approved-event catalogue, newsletter
// subscription and donation recording.
type PublicHandler struct {
	Events      *repository.EventRepo
	Subscribers *repository.SubscriberRepo
	Donations   *repository.DonationRepo
}

func NewPublicHandler(e *repository.EventRepo, s *repository.SubscriberRepo, d *repository.DonationRepo) *PublicHandler {
	return &PublicHandler{Events: e, Subscribers: s, Donations: d}
}

// ListEvents handles GET /v1/events?category=. Only approved events are
// visible to guests; the response cache middleware fronts this route.
func (h *PublicHandler) ListEvents(c echo.Context) error {
	items, err := h.Events.ListApproved(c.Request().Context(), strings.TrimSpace(c.QueryParam("category")))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetEvent handles GET /v1/events/:id. Pending and rejected events are
// hidden from guests as if they did not exist.
func (h *PublicHandler) GetEvent(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ev, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil || ev.Status != model.EventApproved {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	return c.JSON(http.StatusOK, ev)
}

// Subscribe handles POST /v1/newsletter/subscribe.
func (h *PublicHandler) Subscribe(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}

	sub := &model.Subscriber{Email: req.Email, Token: uuid.NewString()}
	if err := h.Subscribers.Create(c.Request().Context(), sub); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already subscribed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "subscribe failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "subscribed"})
}

// Unsubscribe handles GET /v1/newsletter/unsubscribe/:token, the one-click
// link embedded in every newsletter.
func (h *PublicHandler) Unsubscribe(c echo.Context) error {
	tok := strings.TrimSpace(c.Param("token"))
	if tok == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	if err := h.Subscribers.DeleteByToken(c.Request().Context(), tok); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "unsubscribe failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "unsubscribed"})
}

// Donate handles POST /v1/donations. Amounts arrive in cents; the opaque
// reference returned lets the donor quote the record later.
func (h *PublicHandler) Donate(c echo.Context) error {
	var req struct {
		DonorName   string `json:"donor_name"`
		Email       string `json:"email"`
		AmountCents uint32 `json:"amount_cents"`
		Message     string `json:"message"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.DonorName = strings.TrimSpace(req.DonorName)
	if req.DonorName == "" || req.AmountCents == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "donor_name and a positive amount are required"})
	}

	d := &model.Donation{
		DonorName:   req.DonorName,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		AmountCents: req.AmountCents,
		Message:     strings.TrimSpace(req.Message),
		Reference:   uuid.NewString(),
	}
	if err := h.Donations.Create(c.Request().Context(), d); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "donation failed"})
	}
	return c.JSON(http.StatusCreated, d)
}
