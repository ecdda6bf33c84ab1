package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-registration/internal/config"
	"github.com/iliyamo/event-registration/internal/handler"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/queue"
	"github.com/iliyamo/event-registration/internal/repository"
	"github.com/iliyamo/event-registration/internal/router"
	"github.com/iliyamo/event-registration/internal/token"
)

const testSecret = "handler-test-secret"

// recordingPublisher captures queued mail instead of talking to RabbitMQ.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.EmailEvent
}

func (p *recordingPublisher) PublishEmail(_ context.Context, ev queue.EmailEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) last() (queue.EmailEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return queue.EmailEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

type authEnv struct {
	e      *echo.Echo
	ids    *repository.MemoryIdentityStore
	tokens *repository.MemoryTokenStore
	mail   *recordingPublisher
	cfg    config.Config
}

// newAuthEnv wires the auth surface for every role the way main does,
// backed by in-memory stores.
func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	env := &authEnv{
		e:      echo.New(),
		ids:    repository.NewMemoryIdentityStore(),
		tokens: repository.NewMemoryTokenStore(),
		mail:   &recordingPublisher{},
		cfg: config.Config{
			Env:            "dev",
			JWTSecret:      testSecret,
			AccessTTLMin:   60,
			RefreshTTLDays: 7,
			ResetTTLMin:    60,
			BcryptCost:     4,
		},
	}
	for prefix, role := range map[string]model.Role{
		"user":  model.RoleUser,
		"host":  model.RoleHost,
		"admin": model.RoleAdmin,
	} {
		a := handler.NewAuthHandler(env.cfg, role, env.ids, env.tokens, env.mail)
		router.RegisterAuth(env.e, a, prefix, env.cfg.JWTSecret, env.ids)
	}
	return env
}

func (env *authEnv) do(method, path string, body any, cookies []*http.Cookie, bearer string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		bs, _ := json.Marshal(body)
		reader = strings.NewReader(string(bs))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	t.Fatal("no refreshToken cookie in response")
	return nil
}

func registerUser(t *testing.T, env *authEnv, prefix, email string) (*httptest.ResponseRecorder, string, *http.Cookie) {
	t.Helper()
	rec := env.do(http.MethodPost, "/v1/"+prefix+"/register", map[string]string{
		"email":           email,
		"password":        "correcthorse",
		"confirmPassword": "correcthorse",
		"fullName":        "Test Person",
	}, nil, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return rec, resp.AccessToken, refreshCookieFrom(t, rec)
}

func TestRegisterIssuesSessionAndQueuesMail(t *testing.T) {
	env := newAuthEnv(t)
	rec, access, cookie := registerUser(t, env, "host", "host@example.com")

	claims, err := token.ParseAccess(testSecret, access)
	require.NoError(t, err)
	assert.Equal(t, "host", claims.Role)

	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.False(t, cookie.Secure, "dev environment keeps the cookie plain http")
	assert.Positive(t, cookie.MaxAge)

	var resp struct {
		User struct {
			Email    string `json:"email"`
			Role     string `json:"role"`
			Verified bool   `json:"verified"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "host@example.com", resp.User.Email)
	assert.Equal(t, "host", resp.User.Role)
	assert.False(t, resp.User.Verified)

	ev, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, queue.EmailVerification, ev.Kind)
	assert.Equal(t, "host@example.com", ev.To)
	assert.NotEmpty(t, ev.Token)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthEnv(t)
	registerUser(t, env, "user", "dup@example.com")

	rec := env.do(http.MethodPost, "/v1/user/register", map[string]string{
		"email":           "dup@example.com",
		"password":        "correcthorse",
		"confirmPassword": "correcthorse",
		"fullName":        "Second",
	}, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newAuthEnv(t)

	cases := []map[string]string{
		{"email": "bad", "password": "correcthorse", "confirmPassword": "correcthorse", "fullName": "X"},
		{"email": "a@b.com", "password": "short", "confirmPassword": "short", "fullName": "X"},
		{"email": "a@b.com", "password": "correcthorse", "confirmPassword": "different1", "fullName": "X"},
		{"email": "a@b.com", "password": "correcthorse", "confirmPassword": "correcthorse", "fullName": ""},
	}
	for _, body := range cases {
		rec := env.do(http.MethodPost, "/v1/user/register", body, nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}
}

func TestLoginWrongRoleSurface(t *testing.T) {
	env := newAuthEnv(t)
	registerUser(t, env, "user", "participant@example.com")

	// The same credentials on the host surface answer exactly like a bad
	// password, leaking nothing about the account's actual role.
	rec := env.do(http.MethodPost, "/v1/host/login", map[string]string{
		"email":    "participant@example.com",
		"password": "correcthorse",
	}, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestLoginWrongPassword(t *testing.T) {
	env := newAuthEnv(t)
	registerUser(t, env, "user", "p@example.com")

	rec := env.do(http.MethodPost, "/v1/user/login", map[string]string{
		"email":    "p@example.com",
		"password": "wrongwrongwrong",
	}, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newAuthEnv(t)
	_, _, cookie := registerUser(t, env, "user", "r@example.com")

	rec := env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)

	next := refreshCookieFrom(t, rec)
	assert.NotEqual(t, cookie.Value, next.Value, "refresh must rotate the cookie")

	// The rotated-away token is dead; replaying it is rejected and the
	// stale cookie gets cleared.
	rec = env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{cookie}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid session"}`, rec.Body.String())
	cleared := refreshCookieFrom(t, rec)
	assert.Empty(t, cleared.Value)

	// The rotated token still works.
	rec = env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{next}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newAuthEnv(t)
	rec := env.do(http.MethodPost, "/v1/user/refresh-token", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"refresh token missing"}`, rec.Body.String())
}

func TestRefreshWrongRoleSurface(t *testing.T) {
	env := newAuthEnv(t)
	_, _, cookie := registerUser(t, env, "user", "cross@example.com")

	// A participant's refresh token presented to the admin surface is a
	// dead session there, indistinguishable from a forged token.
	rec := env.do(http.MethodPost, "/v1/admin/refresh-token", nil, []*http.Cookie{cookie}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid session"}`, rec.Body.String())
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newAuthEnv(t)
	_, access, cookie := registerUser(t, env, "user", "bye@example.com")

	rec := env.do(http.MethodGet, "/v1/user/logout", nil, []*http.Cookie{cookie}, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The revoked refresh token no longer refreshes.
	rec = env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{cookie}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out twice is fine.
	rec = env.do(http.MethodGet, "/v1/user/logout", nil, []*http.Cookie{cookie}, access)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileRequiresSession(t *testing.T) {
	env := newAuthEnv(t)
	_, access, _ := registerUser(t, env, "user", "me@example.com")

	rec := env.do(http.MethodGet, "/v1/user/profile", nil, nil, access)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/user/profile", nil, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileRoleGate(t *testing.T) {
	env := newAuthEnv(t)
	_, access, _ := registerUser(t, env, "user", "gate@example.com")

	// A participant token on the admin surface is forbidden, not
	// unauthorized: the session is valid, the role is wrong.
	rec := env.do(http.MethodGet, "/v1/admin/profile", nil, nil, access)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	env := newAuthEnv(t)
	_, access, _ := registerUser(t, env, "host", "org@example.com")

	rec := env.do(http.MethodPut, "/v1/host/profile", map[string]string{
		"fullName":     "New Name",
		"organization": "Acme Events",
	}, nil, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := env.ids.GetByEmail(context.Background(), "org@example.com")
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.FullName)
	assert.Equal(t, "Acme Events", u.Organization)
}

func TestExpiredAccessThenRefreshThenRetry(t *testing.T) {
	env := newAuthEnv(t)
	_, _, cookie := registerUser(t, env, "user", "cycle@example.com")
	u, err := env.ids.GetByEmail(context.Background(), "cycle@example.com")
	require.NoError(t, err)

	expired, err := token.NewAccess(testSecret, u.ID, u.Role, -time.Minute)
	require.NoError(t, err)

	// 1: the expired access token is rejected with the distinct body.
	rec := env.do(http.MethodGet, "/v1/user/profile", nil, nil, expired.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"token expired"}`, rec.Body.String())

	// 2: the refresh cookie buys a new pair.
	rec = env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// 3: the retried request succeeds with the fresh token.
	rec = env.do(http.MethodGet, "/v1/user/profile", nil, nil, resp.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPasswordIsNeutral(t *testing.T) {
	env := newAuthEnv(t)
	registerUser(t, env, "user", "known@example.com")

	recKnown := env.do(http.MethodPost, "/v1/user/forgot-password", map[string]string{"email": "known@example.com"}, nil, "")
	recUnknown := env.do(http.MethodPost, "/v1/user/forgot-password", map[string]string{"email": "ghost@example.com"}, nil, "")

	assert.Equal(t, http.StatusOK, recKnown.Code)
	assert.Equal(t, http.StatusOK, recUnknown.Code)
	assert.JSONEq(t, recKnown.Body.String(), recUnknown.Body.String(), "responses must not reveal account existence")
}

func TestResetPasswordRevokesAllSessions(t *testing.T) {
	env := newAuthEnv(t)
	_, _, cookie1 := registerUser(t, env, "user", "reset@example.com")

	// A second session from another device.
	rec := env.do(http.MethodPost, "/v1/user/login", map[string]string{
		"email": "reset@example.com", "password": "correcthorse",
	}, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie2 := refreshCookieFrom(t, rec)

	rec = env.do(http.MethodPost, "/v1/user/forgot-password", map[string]string{"email": "reset@example.com"}, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	ev, ok := env.mail.last()
	require.True(t, ok)
	require.Equal(t, queue.EmailPasswordReset, ev.Kind)
	require.NotEmpty(t, ev.Token)

	rec = env.do(http.MethodPost, "/v1/user/reset-password/"+ev.Token, map[string]string{
		"password": "brandnewpass", "confirmPassword": "brandnewpass",
	}, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Every pre-reset session is dead.
	for _, c := range []*http.Cookie{cookie1, cookie2} {
		rec = env.do(http.MethodPost, "/v1/user/refresh-token", nil, []*http.Cookie{c}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// The old password is gone, the new one works.
	rec = env.do(http.MethodPost, "/v1/user/login", map[string]string{
		"email": "reset@example.com", "password": "correcthorse",
	}, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/v1/user/login", map[string]string{
		"email": "reset@example.com", "password": "brandnewpass",
	}, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetPasswordBadToken(t *testing.T) {
	env := newAuthEnv(t)
	rec := env.do(http.MethodPost, "/v1/user/reset-password/bogus", map[string]string{
		"password": "brandnewpass", "confirmPassword": "brandnewpass",
	}, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEmail(t *testing.T) {
	env := newAuthEnv(t)
	registerUser(t, env, "user", "v@example.com")
	ev, ok := env.mail.last()
	require.True(t, ok)
	require.Equal(t, queue.EmailVerification, ev.Kind)

	rec := env.do(http.MethodGet, "/v1/user/verify-email/"+ev.Token, nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := env.ids.GetByEmail(context.Background(), "v@example.com")
	require.NoError(t, err)
	assert.True(t, u.Verified)

	// Second use of the same token fails.
	rec = env.do(http.MethodGet, "/v1/user/verify-email/"+ev.Token, nil, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
