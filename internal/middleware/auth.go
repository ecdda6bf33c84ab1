package middleware // middleware contains reusable HTTP middleware for protected routes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
	"github.com/iliyamo/event-registration/internal/token"
)

// Context keys set by Authenticate and read by handlers and RequireRole.
const (
	CtxIdentity = "identity" // *model.Identity resolved from the claim
	CtxUserID   = "user_id"  // uint64 identity id
	CtxRole     = "role"     // string, already lower-cased by the issuer
)

// Authenticate returns the session gate shared by every role. It extracts
// the bearer token, verifies signature and expiry, resolves the identity by
// the claim's subject, and attaches it to the request context. The gate is
// read-only and is the single implementation backing all three role
// surfaces.
//
// An expired token answers 401 with body "token expired", distinct from the
// generic "unauthorized", so a client can decide between a silent refresh
// and a redirect to login.
func Authenticate(secret string, identities repository.IdentityStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := token.ParseAccess(secret, raw)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			id, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			ident, err := identities.GetByID(c.Request().Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					// Identity deleted after the token was issued.
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
			}

			c.Set(CtxIdentity, ident)
			c.Set(CtxUserID, ident.ID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// CurrentIdentity pulls the identity attached by Authenticate out of the
// context. The ok flag guards handlers that are accidentally registered
// without the gate.
func CurrentIdentity(c echo.Context) (*model.Identity, bool) {
	ident, ok := c.Get(CtxIdentity).(*model.Identity)
	return ident, ok
}
