package handler // administrator review workflow and account browsing

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/queue"
	"github.com/iliyamo/event-registration/internal/repository"
	queue_publisher "github.com/iliyamo/event-registration/internal/service"
)

// AdminHandler bundles dependencies for administrator endpoints.
type AdminHandler struct {
	Events      *repository.EventRepo
	Identities  repository.IdentityStore
	Donations   *repository.DonationRepo
	Subscribers *repository.SubscriberRepo
	Mail        queue_publisher.EmailPublisher
}

func NewAdminHandler(e *repository.EventRepo, ids repository.IdentityStore,
	d *repository.DonationRepo, s *repository.SubscriberRepo, mail queue_publisher.EmailPublisher) *AdminHandler {
	return &AdminHandler{Events: e, Identities: ids, Donations: d, Subscribers: s, Mail: mail}
}

// ListEvents handles GET /v1/admin/events?status=PENDING. Defaults to the
// review queue.
func (h *AdminHandler) ListEvents(c echo.Context) error {
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if status == "" {
		status = model.EventPending
	}
	if status != model.EventPending && status != model.EventApproved && status != model.EventRejected {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	items, err := h.Events.ListByStatus(c.Request().Context(), status)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Approve handles POST /v1/admin/events/:id/approve.
func (h *AdminHandler) Approve(c echo.Context) error {
	return h.decide(c, model.EventApproved)
}

// Reject handles POST /v1/admin/events/:id/reject.
func (h *AdminHandler) Reject(c echo.Context) error {
	return h.decide(c, model.EventRejected)
}

// decide records the decision and queues a notification mail to the host.
func (h *AdminHandler) decide(c echo.Context, status string) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req struct {
		Note string `json:"note"`
	}
	_ = c.Bind(&req) // note is optional; an empty body is fine

	ctx := c.Request().Context()
	if err := h.Events.Decide(ctx, id, ident.ID, status, strings.TrimSpace(req.Note)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "event already decided"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "decision failed"})
	}

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if host, err := h.Identities.GetByID(ctx, ev.HostID); err == nil {
		_ = h.Mail.PublishEmail(ctx, queue.EmailEvent{
			Kind:       queue.EmailEventDecision,
			To:         host.Email,
			Name:       host.FullName,
			EventTitle: ev.Title,
			Decision:   strings.ToLower(status),
			Note:       ev.ReviewNote,
		})
	}
	return c.JSON(http.StatusOK, ev)
}

// ListIdentities handles GET /v1/admin/identities?role=host.
func (h *AdminHandler) ListIdentities(c echo.Context) error {
	role := model.NormalizeRole(c.QueryParam("role"))
	if !role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}
	items, err := h.Identities.ListByRole(c.Request().Context(), role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	out := make([]userPart, 0, len(items))
	for _, u := range items {
		out = append(out, toUserPart(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// ListDonations handles GET /v1/admin/donations.
func (h *AdminHandler) ListDonations(c echo.Context) error {
	items, err := h.Donations.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListSubscribers handles GET /v1/admin/subscribers.
func (h *AdminHandler) ListSubscribers(c echo.Context) error {
	items, err := h.Subscribers.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
