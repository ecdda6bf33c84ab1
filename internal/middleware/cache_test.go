package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-registration/internal/config"
)

func cacheEcho(t *testing.T, cfg config.CacheConfig) (*echo.Echo, *atomic.Int64) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var hits atomic.Int64
	e := echo.New()
	e.Use(NewRedisCache(cfg, rdb))
	e.GET("/events", func(c echo.Context) error {
		hits.Add(1)
		return c.JSON(http.StatusOK, echo.Map{"events": []string{"a", "b"}})
	})
	e.GET("/missing", func(c echo.Context) error {
		hits.Add(1)
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	})
	e.POST("/events", func(c echo.Context) error {
		hits.Add(1)
		return c.JSON(http.StatusCreated, echo.Map{"ok": true})
	})
	return e, &hits
}

func defaultCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{"GET": true},
		TTL:          30 * time.Second,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

func TestCacheServesSecondRequestFromRedis(t *testing.T) {
	e, hits := cacheEcho(t, defaultCacheConfig())

	rec1 := httptest.NewRecorder()
	e.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, "MISS", rec1.Header().Get("X-Cache"))

	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "HIT", rec2.Header().Get("X-Cache"))

	assert.Equal(t, int64(1), hits.Load(), "handler runs once, hit served from cache")
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())
}

func TestCacheKeyIncludesQuery(t *testing.T) {
	e, hits := cacheEcho(t, defaultCacheConfig())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events?category=music", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events?category=tech", nil))

	assert.Equal(t, int64(2), hits.Load(), "different queries must not share a cache entry")
}

func TestCacheSkipsNon2xx(t *testing.T) {
	e, hits := cacheEcho(t, defaultCacheConfig())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, int64(2), hits.Load(), "error responses are never cached")
}

func TestCacheSkipsUnlistedMethods(t *testing.T) {
	e, hits := cacheEcho(t, defaultCacheConfig())

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/events", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/events", nil))

	assert.Equal(t, int64(2), hits.Load())
}

func TestCacheDisabledPassesThrough(t *testing.T) {
	var hits atomic.Int64
	e := echo.New()
	e.Use(NewRedisCache(config.CacheConfig{Enabled: false}, nil))
	e.GET("/events", func(c echo.Context) error {
		hits.Add(1)
		return c.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, int64(2), hits.Load())
}

func TestEncodeDecodePayload(t *testing.T) {
	hdr := http.Header{"Content-Type": []string{"application/json"}}
	body := []byte(`{"ok":true}`)

	bs, err := encodePayload(http.StatusOK, hdr, body)
	require.NoError(t, err)

	status, gotHdr, gotBody, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, body, gotBody)

	// Truncated blobs must be rejected, not misread.
	_, _, _, ok = decodePayload(bs[:4])
	assert.False(t, ok)
}
