package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/repository"
	"github.com/iliyamo/event-registration/internal/token"
)

const gateSecret = "middleware-test-secret"

func seedIdentity(t *testing.T, ids *repository.MemoryIdentityStore, role model.Role) *model.Identity {
	t.Helper()
	u := &model.Identity{Email: string(role) + "@example.com", Role: role, FullName: "Test " + string(role)}
	require.NoError(t, ids.Create(context.Background(), u))
	return u
}

// runGate sends one request through Authenticate (optionally followed by
// RequireRole) into a handler that records whether it was reached.
func runGate(t *testing.T, ids repository.IdentityStore, authHeader string, roles ...string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := echo.HandlerFunc(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	mw := Authenticate(gateSecret, ids)(h)
	if len(roles) > 0 {
		mw = Authenticate(gateSecret, ids)(RequireRole(roles...)(h))
	}
	require.NoError(t, mw(c))
	return rec, reached
}

func TestAuthenticateValidToken(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := seedIdentity(t, ids, model.RoleUser)
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, time.Hour)
	require.NoError(t, err)

	rec, reached := runGate(t, ids, "Bearer "+acc.Token)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateSetsContext(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := seedIdentity(t, ids, model.RoleHost)
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+acc.Token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = Authenticate(gateSecret, ids)(func(c echo.Context) error {
		ident, ok := CurrentIdentity(c)
		require.True(t, ok)
		assert.Equal(t, u.ID, ident.ID)
		assert.Equal(t, u.ID, c.Get(CtxUserID))
		assert.Equal(t, "host", c.Get(CtxRole))
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := seedIdentity(t, ids, model.RoleUser)
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, -time.Minute)
	require.NoError(t, err)

	rec, reached := runGate(t, ids, "Bearer "+acc.Token)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// The body distinguishes expiry from every other rejection so clients
	// know a silent refresh is worth trying.
	assert.JSONEq(t, `{"error":"token expired"}`, rec.Body.String())
}

func TestAuthenticateMalformedToken(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()

	rec, reached := runGate(t, ids, "Bearer not.a.token")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestAuthenticateMissingHeader(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()

	rec, reached := runGate(t, ids, "")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestAuthenticateDeletedIdentity(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	// A signed token for an id that was never created, as after deletion.
	acc, err := token.NewAccess(gateSecret, 12345, model.RoleUser, time.Hour)
	require.NoError(t, err)

	rec, reached := runGate(t, ids, "Bearer "+acc.Token)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestRequireRoleAllows(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := seedIdentity(t, ids, model.RoleAdmin)
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, time.Hour)
	require.NoError(t, err)

	rec, reached := runGate(t, ids, "Bearer "+acc.Token, string(model.RoleAdmin))
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleForbidsOtherRole(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := seedIdentity(t, ids, model.RoleHost)
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, time.Hour)
	require.NoError(t, err)

	// A valid host session on an admin route is forbidden, not unauthorized.
	rec, reached := runGate(t, ids, "Bearer "+acc.Token, string(model.RoleAdmin))
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
}

func TestRequireRoleCaseInsensitive(t *testing.T) {
	ids := repository.NewMemoryIdentityStore()
	u := &model.Identity{Email: "legacy@example.com", Role: model.Role("Host"), FullName: "Legacy"}
	require.NoError(t, ids.Create(context.Background(), u))
	acc, err := token.NewAccess(gateSecret, u.ID, u.Role, time.Hour)
	require.NoError(t, err)

	rec, reached := runGate(t, ids, "Bearer "+acc.Token, "host")
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	// Misregistered route: the role gate without the session gate answers
	// 401 instead of dereferencing a missing identity.
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole("user")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
