// Package session is the client half of the dual-token scheme: an HTTP
// client wrapper that attaches the current access token to every request
// and performs a silent refresh when the server answers 401.
//
// The one nontrivial property lives here: however many concurrent requests
// hit a 401 at the same moment, the refresh endpoint is called exactly
// once. The first loser of an expired token becomes the refresher; every
// other request parks on a waiter channel and is replayed (or failed) with
// the refresher's outcome.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// ErrSessionExpired is returned when the refresh call itself is rejected.
// Refresh tokens are not refreshable, so the only recovery is a new login.
// All local auth state has been cleared by the time callers see it.
var ErrSessionExpired = errors.New("session expired, login required")

// TokenStore optionally mirrors the access token to persistent storage so
// a restarted client can restore its session without logging in again.
type TokenStore interface {
	Load() (string, error)
	Store(token string) error
	Clear() error
}

// Client wraps an http.Client with session management. The zero value is
// not usable; construct with New. The underlying client carries a cookie
// jar: the refresh token travels only in its httpOnly cookie.
type Client struct {
	baseURL        string
	refreshPath    string
	httpClient     *http.Client
	store          TokenStore
	refreshTimeout time.Duration

	mu          sync.Mutex
	accessToken string
	refreshing  bool
	waiters     []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the transport. The client must keep a cookie
// jar or refreshes will lose the rotated cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenStore mirrors the access token into persistent storage.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.store = s }
}

// WithRefreshTimeout bounds the silent refresh call. A hung refresh must
// reject the queued waiters rather than hold them forever.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// New builds a session client for one role surface. refreshPath is the
// role's refresh endpoint, e.g. "/v1/host/refresh-token".
func New(baseURL, refreshPath string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		refreshPath:    refreshPath,
		refreshTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient = &http.Client{Jar: jar}
	}
	return c
}

// SetAccessToken installs a token obtained out of band (login/register).
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
	if c.store != nil {
		_ = c.store.Store(token)
	}
}

// AccessToken returns the current token ("" when logged out).
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Restore loads a persisted token and uses it provisionally while a
// background refresh confirms or invalidates it. The fast path keeps
// perceived startup latency low; the provisional token is only trusted
// until the refresh answers.
func (c *Client) Restore(ctx context.Context) bool {
	if c.store == nil {
		return false
	}
	tok, err := c.store.Load()
	if err != nil || tok == "" {
		return false
	}
	c.mu.Lock()
	c.accessToken = tok
	c.mu.Unlock()
	go func() { _, _ = c.awaitRefresh(ctx, tok) }()
	return true
}

// Logout clears all local auth state. The server-side revocation is a
// separate call; this only forgets.
func (c *Client) Logout() {
	c.clearAuthState()
}

// Do sends the request with the current access token attached. On a 401
// it coordinates a single silent refresh and replays the request once with
// the new token. Requests with a non-rewindable body (GetBody == nil after
// a read) cannot be replayed and return the original 401 response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	used := c.AccessToken()
	if used != "" {
		req.Header.Set("Authorization", "Bearer "+used)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	retry, rerr := c.cloneForRetry(req)
	if rerr != nil {
		return resp, nil // cannot replay; hand the 401 to the caller
	}

	newTok, rerr := c.awaitRefresh(req.Context(), used)
	if rerr != nil {
		drain(resp)
		return nil, rerr
	}

	drain(resp)
	retry.Header.Set("Authorization", "Bearer "+newTok)
	return c.httpClient.Do(retry)
}

func (c *Client) cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

// awaitRefresh collapses concurrent 401s into one refresh call. Exactly
// one goroutine performs the HTTP round trip; the rest block on a waiter
// channel and share its outcome. usedToken is the token the caller got
// rejected with: if another goroutine already replaced it, the caller
// takes the replacement instead of refreshing again.
func (c *Client) awaitRefresh(ctx context.Context, usedToken string) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && c.accessToken != usedToken {
		tok := c.accessToken
		c.mu.Unlock()
		return tok, nil
	}
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	tok, err := c.doRefresh(ctx)

	res := refreshResult{token: tok, err: err}
	c.mu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	if err == nil {
		c.accessToken = tok
	}
	c.mu.Unlock()

	if err == nil {
		if c.store != nil {
			_ = c.store.Store(tok)
		}
	} else {
		c.clearAuthState()
	}
	// All-or-nothing: every queued request sees the same outcome.
	for _, ch := range waiters {
		ch <- res
	}
	return tok, err
}

// doRefresh performs the refresh round trip. A 401 here means the refresh
// token itself is dead, and there is no second level of refresh, so the
// session is over.
func (c *Client) doRefresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh call failed: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			AccessToken string `json:"accessToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("refresh response: %w", err)
		}
		if body.AccessToken == "" {
			return "", errors.New("refresh response missing access token")
		}
		return body.AccessToken, nil
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return "", ErrSessionExpired
	default:
		return "", fmt.Errorf("refresh call returned %d", resp.StatusCode)
	}
}

func (c *Client) clearAuthState() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
	if c.store != nil {
		_ = c.store.Clear()
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
