package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authServer fakes the role surface: /data wants the current token,
// /refresh-token issues the next one.
type authServer struct {
	mu           sync.Mutex
	validToken   string
	refreshCalls atomic.Int64
	refreshDelay time.Duration
	refreshFail  bool
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := s.validToken
		s.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}
		if s.refreshFail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid session"}`))
			return
		}
		s.mu.Lock()
		s.validToken = "fresh"
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "fresh"})
	})
	return mux
}

func newTestSession(t *testing.T, s *authServer, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, "/refresh-token", opts...)
	return c, srv
}

func TestDoAttachesBearer(t *testing.T) {
	s := &authServer{validToken: "good"}
	c, srv := newTestSession(t, s)
	c.SetAccessToken("good")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), s.refreshCalls.Load())
}

func TestDoRefreshesOn401AndRetries(t *testing.T) {
	s := &authServer{validToken: "fresh"}
	c, srv := newTestSession(t, s)
	c.SetAccessToken("stale")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), s.refreshCalls.Load())
	assert.Equal(t, "fresh", c.AccessToken())
}

func TestConcurrent401sRefreshOnce(t *testing.T) {
	s := &authServer{validToken: "fresh", refreshDelay: 50 * time.Millisecond}
	c, srv := newTestSession(t, s)
	c.SetAccessToken("stale")

	const n = 5
	var wg sync.WaitGroup
	codes := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
			resp, err := c.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "request %d", i)
		assert.Equal(t, http.StatusOK, codes[i], "request %d", i)
	}
	assert.Equal(t, int64(1), s.refreshCalls.Load(),
		"concurrent 401s must collapse into one refresh call")
}

func TestRefreshFailureRejectsAllWaiters(t *testing.T) {
	s := &authServer{validToken: "never", refreshDelay: 30 * time.Millisecond, refreshFail: true}
	c, srv := newTestSession(t, s)
	c.SetAccessToken("stale")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
			resp, err := c.Do(req)
			if resp != nil {
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], ErrSessionExpired, "request %d", i)
	}
	assert.Equal(t, int64(1), s.refreshCalls.Load())
	assert.Empty(t, c.AccessToken(), "failed refresh clears local auth state")
}

func TestRefreshTimeout(t *testing.T) {
	s := &authServer{validToken: "fresh", refreshDelay: 2 * time.Second}
	c, srv := newTestSession(t, s, WithRefreshTimeout(50*time.Millisecond))
	c.SetAccessToken("stale")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	start := time.Now()
	_, err := c.Do(req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "a hung refresh must not hold callers")
}

func TestDoReplaysRequestBody(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh-token" {
			_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "fresh"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		got.Store(string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "/refresh-token")
	c.SetAccessToken("stale")

	// strings.Reader bodies get GetBody for free, so the retry can rewind.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/submit", strings.NewReader(`{"v":1}`))
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"v":1}`, got.Load())
}

// memStore is a TokenStore backed by a plain variable.
type memStore struct {
	mu  sync.Mutex
	tok string
}

func (m *memStore) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok, nil
}

func (m *memStore) Store(tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = tok
	return nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tok = ""
	return nil
}

func TestRestoreUsesPersistedToken(t *testing.T) {
	// The slow refresh keeps the background confirmation from replacing the
	// provisional token while the assertions run.
	s := &authServer{validToken: "persisted", refreshDelay: 200 * time.Millisecond}
	store := &memStore{tok: "persisted"}
	c, srv := newTestSession(t, s, WithTokenStore(store))

	require.True(t, c.Restore(context.Background()))
	assert.Equal(t, "persisted", c.AccessToken(), "restore is optimistic, usable before confirmation")

	// The provisional token already works against the API.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRestoreEmptyStore(t *testing.T) {
	s := &authServer{}
	c, _ := newTestSession(t, s, WithTokenStore(&memStore{}))
	assert.False(t, c.Restore(context.Background()))
}

func TestLogoutClearsStore(t *testing.T) {
	store := &memStore{}
	s := &authServer{}
	c, _ := newTestSession(t, s, WithTokenStore(store))

	c.SetAccessToken("abc")
	tok, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	c.Logout()
	assert.Empty(t, c.AccessToken())
	tok, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}
