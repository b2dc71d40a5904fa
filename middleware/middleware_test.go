package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/extract-text", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestMemoryRateLimit(t *testing.T) {
	limiter := NewMemoryLimiter(2, time.Minute)
	r := newRouter(RateLimitMiddleware(limiter, 2, time.Minute))

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/extract-text").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/extract-text").Code)

	w := doRequest(r, http.MethodPost, "/extract-text")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// Health checks are never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/health").Code)
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	allowed, _, err := limiter.Allow(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _ = limiter.Allow(context.Background(), "a")
	assert.False(t, allowed)

	limiter.Sweep(0)
	allowed, _, _ = limiter.Allow(context.Background(), "a")
	assert.True(t, allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, int, error) {
	return false, 0, assert.AnError
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := newRouter(RateLimitMiddleware(failingLimiter{}, 1, time.Minute))
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/extract-text").Code)
}

func TestRedisRateLimit(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	limiter := NewRedisLimiter(rdb, 2, time.Minute)
	defer rdb.Del(context.Background(), "ratelimit:"+key)

	for i, want := range []bool{true, true, false} {
		allowed, _, err := limiter.Allow(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "request %d", i+1)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := doRequest(r, http.MethodGet, "/id")
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRequestSizeLimit(t *testing.T) {
	r := newRouter(RequestSizeLimit(10))

	req := httptest.NewRequest(http.MethodPost, "/extract-text", strings.NewReader(strings.Repeat("x", 100)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/extract-text", strings.NewReader("small"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsMiddlewareNilSafe(t *testing.T) {
	r := newRouter(MetricsMiddleware(nil), EnrichTrace())
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/health").Code)
}
