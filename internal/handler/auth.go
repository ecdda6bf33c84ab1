package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-registration/internal/config"
	"github.com/iliyamo/event-registration/internal/middleware"
	"github.com/iliyamo/event-registration/internal/model"
	"github.com/iliyamo/event-registration/internal/queue"
	"github.com/iliyamo/event-registration/internal/repository"
	queue_publisher "github.com/iliyamo/event-registration/internal/service"
	"github.com/iliyamo/event-registration/internal/token"
)

// refreshCookie is the name of the httpOnly cookie carrying the refresh
// token. It is the only place the raw refresh token lives on the client.
const refreshCookie = "refreshToken"

// AuthHandler implements register/login/refresh/logout/profile and the
// password flows. One implementation serves every role: the router binds an
// instance per role group, so the triplicated per-role logic of the old
// system collapses into this file.
type AuthHandler struct {
	Cfg        config.Config
	Role       model.Role
	Identities repository.IdentityStore
	Tokens     repository.TokenStore
	Mail       queue_publisher.EmailPublisher
}

func NewAuthHandler(cfg config.Config, role model.Role, ids repository.IdentityStore,
	tokens repository.TokenStore, mail queue_publisher.EmailPublisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Role: role, Identities: ids, Tokens: tokens, Mail: mail}
}

// ----- DTOs -----

type registerReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FullName        string `json:"fullName"`
	Organization    string `json:"organization"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	FullName     string `json:"fullName"`
	Organization string `json:"organization,omitempty"`
	Verified     bool   `json:"verified"`
}

type authResp struct {
	AccessToken string   `json:"accessToken"`
	User        userPart `json:"user"`
}

func toUserPart(u *model.Identity) userPart {
	return userPart{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		FullName:     u.FullName,
		Organization: u.Organization,
		Verified:     u.Verified,
	}
}

func (h *AuthHandler) accessTTL() time.Duration {
	return time.Duration(h.Cfg.AccessTTLMin) * time.Minute
}

func (h *AuthHandler) refreshTTL() time.Duration {
	return time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour
}

// setRefreshCookie installs the rotated refresh token: httpOnly so scripts
// never see it, Secure outside dev, SameSite Lax, lifetime matching the
// stored expiry.
func (h *AuthHandler) setRefreshCookie(c echo.Context, raw string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    raw,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(time.Until(exp) / time.Second),
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

// issuePair mints the access/refresh pair and stores the refresh hash.
// Token creation is pure; the Save is the only side effect.
func (h *AuthHandler) issuePair(ctx context.Context, u *model.Identity) (token.Access, token.Refresh, error) {
	access, err := token.NewAccess(h.Cfg.JWTSecret, u.ID, u.Role, h.accessTTL())
	if err != nil {
		return token.Access{}, token.Refresh{}, err
	}
	refresh, err := token.NewRefresh(h.refreshTTL())
	if err != nil {
		return token.Access{}, token.Refresh{}, err
	}
	if err := h.Tokens.Save(ctx, u.ID, u.Role, token.HashRefresh(refresh.Raw), refresh.Exp); err != nil {
		return token.Access{}, token.Refresh{}, err
	}
	return access, refresh, nil
}

func validEmail(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

// Register creates an identity for this handler's role and signs it in
// immediately. A verification mail is queued; delivery failure never fails
// the registration.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if !validEmail(req.Email) || req.FullName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and full name required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if req.Password != req.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash, err := token.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create account failed"})
	}
	ident := &model.Identity{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         h.Role,
		FullName:     req.FullName,
		Organization: strings.TrimSpace(req.Organization),
		VerifyToken:  uuid.NewString(),
	}
	if err := h.Identities.Create(ctx, ident); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create account failed"})
	}

	access, refresh, err := h.issuePair(ctx, ident)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	_ = h.Mail.PublishEmail(ctx, queue.EmailEvent{
		Kind:  queue.EmailVerification,
		To:    ident.Email,
		Name:  ident.FullName,
		Role:  string(ident.Role),
		Token: ident.VerifyToken,
	})

	h.setRefreshCookie(c, refresh.Raw, refresh.Exp)
	return c.JSON(http.StatusCreated, authResp{AccessToken: access.Token, User: toUserPart(ident)})
}

// Login verifies credentials for this role and returns a fresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Identities.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// An email registered under another role must not open a session on
	// this surface; answer exactly like a bad password.
	if u.Role != h.Role || !token.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, refresh, err := h.issuePair(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	h.setRefreshCookie(c, refresh.Raw, refresh.Exp)
	return c.JSON(http.StatusOK, authResp{AccessToken: access.Token, User: toUserPart(u)})
}

// Refresh exchanges the cookie's refresh token for a new access token and a
// rotated refresh token. Minting happens before any write; the conditional
// Rotate is the single commit point, so a failure anywhere leaves the old
// token either fully valid or already owned by a concurrent winner, never
// half-rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token missing"})
	}
	oldHash := token.HashRefresh(strings.TrimSpace(cookie.Value))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	row, err := h.Tokens.Lookup(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Expired, rotated away or forged: uniformly a dead session.
			h.clearRefreshCookie(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if row.Role != h.Role {
		h.clearRefreshCookie(c)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
	}

	u, err := h.Identities.GetByID(ctx, row.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Identity deleted after the token was issued.
			h.clearRefreshCookie(c)
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	access, err := token.NewAccess(h.Cfg.JWTSecret, u.ID, u.Role, h.accessTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	next, err := token.NewRefresh(h.refreshTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}

	// Sliding window: the row keeps its identity but gets the new hash and
	// a fresh expiry. A concurrent refresh of the same token loses here.
	if err := h.Tokens.Rotate(ctx, oldHash, token.HashRefresh(next.Raw), next.Exp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.clearRefreshCookie(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rotate failed"})
	}

	h.setRefreshCookie(c, next.Raw, next.Exp)
	return c.JSON(http.StatusOK, authResp{AccessToken: access.Token, User: toUserPart(u)})
}

// Logout revokes the session behind the presented cookie and clears it.
// Revoking an already-dead token still answers 200; logout is idempotent.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if cookie, err := c.Cookie(refreshCookie); err == nil && cookie.Value != "" {
		if err := h.Tokens.Revoke(ctx, token.HashRefresh(cookie.Value)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Profile returns the authenticated identity.
func (h *AuthHandler) Profile(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(ident)})
}

// UpdateProfile mutates the display fields of the authenticated identity.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		FullName     string `json:"fullName"`
		Organization string `json:"organization"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "full name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Identities.UpdateProfile(ctx, ident.ID, req.FullName, strings.TrimSpace(req.Organization)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	ident.FullName, ident.Organization = req.FullName, strings.TrimSpace(req.Organization)
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(ident)})
}

// ForgotPassword stores a hashed reset token and queues the reset mail.
// The response never reveals whether the address exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	neutral := echo.Map{"message": "if the account exists, a reset link has been sent"}

	u, err := h.Identities.GetByEmail(ctx, req.Email)
	if err != nil || u.Role != h.Role {
		return c.JSON(http.StatusOK, neutral)
	}

	reset, err := token.NewRefresh(time.Duration(h.Cfg.ResetTTLMin) * time.Minute)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	if err := h.Identities.SetResetToken(ctx, u.ID, token.HashRefresh(reset.Raw), reset.Exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}

	_ = h.Mail.PublishEmail(ctx, queue.EmailEvent{
		Kind:  queue.EmailPasswordReset,
		To:    u.Email,
		Name:  u.FullName,
		Role:  string(u.Role),
		Token: reset.Raw,
	})
	return c.JSON(http.StatusOK, neutral)
}

// ResetPassword consumes a reset token, swaps the password hash and revokes
// every stored refresh token of the identity. A reset invalidates all
// sessions, so a stolen refresh token dies with the old password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	raw := strings.TrimSpace(c.Param("token"))
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reset token required"})
	}
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}
	if req.Password != req.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Identities.GetByResetToken(ctx, token.HashRefresh(raw), time.Now().UTC())
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired reset token"})
	}
	hash, err := token.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	if err := h.Identities.UpdatePassword(ctx, u.ID, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	if err := h.Tokens.RevokeAllForIdentity(ctx, u.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reset failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated, please log in again"})
}

// VerifyEmail consumes an email-verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	tok := strings.TrimSpace(c.Param("token"))
	if tok == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "verification token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Identities.SetVerified(ctx, tok); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown verification token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}
