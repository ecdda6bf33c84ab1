package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/repository"
)

// RegisterAuth mounts one AuthHandler under /v1/<prefix>. The same
// registration runs once per role, which is how the single parameterized
// auth implementation replaces the three per-role copies of the old
// system.
//
// Open endpoints (register, login, refresh, the password flows) take no
// middleware: refresh authenticates with the cookie, not a bearer token.
// The session endpoints (logout, profile) sit behind the session gate and
// the role gate.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, prefix, jwtSecret string, ids repository.IdentityStore) {
	g := e.Group("/v1/" + prefix)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh-token", a.Refresh)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password/:token", a.ResetPassword)
	g.GET("/verify-email/:token", a.VerifyEmail)

	auth := e.Group(
		"/v1/"+prefix,
		middleware.Authenticate(jwtSecret, ids),
		middleware.RequireRole(string(a.Role)),
	)
	auth.GET("/logout", a.Logout)
	auth.GET("/profile", a.Profile)
	auth.PUT("/profile", a.UpdateProfile)
}
