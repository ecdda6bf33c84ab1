package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole enforces that the authenticated identity carries one of the
// given roles. Comparison is case-insensitive; the issuer lower-cases the
// role claim but stored identities predate that guarantee. The gate must
// run after Authenticate: a missing identity here means the route was
// registered without the session gate, answered as 401 rather than a nil
// dereference.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[strings.ToLower(r)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := CurrentIdentity(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if !allowed[strings.ToLower(string(ident.Role))] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
