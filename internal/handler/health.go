package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers load-balancer probes at GET /healthz.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
