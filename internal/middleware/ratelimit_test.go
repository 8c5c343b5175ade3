package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], ttl, nil
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func get(router http.Handler, client string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if client != "" {
		req.Header.Set("X-Client-ID", client)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	logger.InitializeForTest()
	rl := NewRateLimiter(RateLimitConfig{Name: "test-local", Limit: 3, Window: time.Second}, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }
	router := limitedRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(router, "").Code, "request %d should succeed", i+1)
	}

	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Get().RateLimitExceededTotal.WithLabelValues("test-local")))

	// one token is back after a third of the window
	now = now.Add(400 * time.Millisecond)
	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "").Code)
}

func TestRateLimiterDifferentClients(t *testing.T) {
	logger.InitializeForTest()
	rl := NewRateLimiter(RateLimitConfig{
		Name:   "test-clients",
		Limit:  2,
		Window: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return c.GetHeader("X-Client-ID")
		},
	}, nil)
	router := limitedRouter(rl)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(router, "client-a").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, "client-a").Code, "client A should be rate limited")
	assert.Equal(t, http.StatusOK, get(router, "client-b").Code, "client B should not be rate limited")
}

func TestRateLimiterUsesCounter(t *testing.T) {
	logger.InitializeForTest()
	counter := &fakeCounter{}
	rl := NewRateLimiter(RateLimitConfig{Name: "test-redis", Limit: 2, Window: 30 * time.Second}, counter)
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusOK, get(router, "").Code)
	w := get(router, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	require.Len(t, counter.counts, 1)
	for key, n := range counter.counts {
		assert.Equal(t, "ratelimit:test-redis:192.0.2.1", key)
		assert.Equal(t, int64(3), n)
	}
	assert.Empty(t, rl.buckets)
}

func TestRateLimiterFallsBackWhenCounterFails(t *testing.T) {
	logger.InitializeForTest()
	counter := &fakeCounter{err: errors.New("connection refused")}
	rl := NewRateLimiter(RateLimitConfig{Name: "test-fallback", Limit: 1, Window: time.Minute}, counter)
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "").Code)
	assert.Len(t, rl.buckets, 1)
}

func TestDefaultConfigs(t *testing.T) {
	defaultConfig := DefaultRateLimitConfig()
	assert.Equal(t, 100, defaultConfig.Limit)
	assert.Equal(t, time.Minute, defaultConfig.Window)
	assert.NotNil(t, defaultConfig.KeyFunc)

	authConfig := AuthRateLimitConfig()
	assert.Equal(t, 10, authConfig.Limit)
	assert.Equal(t, time.Minute, authConfig.Window)

	publishConfig := PublishRateLimitConfig()
	assert.Equal(t, 20, publishConfig.Limit)
	assert.Equal(t, "publish", publishConfig.Name)
}

func TestUserOrIPKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "ip:192.0.2.1", UserOrIPKey(c))

	c.Set(userIDKey, "user-1")
	assert.Equal(t, "user:user-1", UserOrIPKey(c))
}
