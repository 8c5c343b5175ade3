package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Name prefixes the counter keys and labels the rejection metric.
	Name string
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the client a request is counted against.
	KeyFunc func(c *gin.Context) string
}

// ClientIPKey counts requests per client IP.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// UserOrIPKey counts authenticated requests per user and the rest per IP.
func UserOrIPKey(c *gin.Context) string {
	if userID := c.GetString(userIDKey); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "api", Limit: 100, Window: time.Minute, KeyFunc: UserOrIPKey}
}

// AuthRateLimitConfig returns stricter limits for login and registration.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "auth", Limit: 10, Window: time.Minute, KeyFunc: ClientIPKey}
}

// PublishRateLimitConfig limits post publishing, which fans out to every
// connected platform.
func PublishRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "publish", Limit: 20, Window: time.Minute, KeyFunc: UserOrIPKey}
}

// RenderRateLimitConfig limits the public Open Graph image endpoint.
func RenderRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Name: "og", Limit: 120, Window: time.Minute, KeyFunc: ClientIPKey}
}

// Counter is a shared fixed-window counter. *cache.RedisClient implements it.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
}

// TokenBucket for rate limiting
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes a token if one is available. When none is, it also returns
// how long until the next one.
func (tb *TokenBucket) Allow(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = math.Min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	wait := (1 - tb.tokens) / tb.refillRate
	return false, time.Duration(wait * float64(time.Second))
}

func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiter counts requests in Redis when a Counter is configured and
// falls back to per-process token buckets otherwise or when Redis fails.
type RateLimiter struct {
	config  RateLimitConfig
	counter Counter

	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	lastPrune time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter. counter may be nil.
func NewRateLimiter(config RateLimitConfig, counter Counter) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKey
	}
	if config.Name == "" {
		config.Name = "api"
	}
	return &RateLimiter{
		config:    config,
		counter:   counter,
		buckets:   make(map[string]*TokenBucket),
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	limit := strconv.Itoa(rl.config.Limit)
	return func(c *gin.Context) {
		allowed, retryAfter := rl.Allow(c.Request.Context(), rl.config.KeyFunc(c))
		c.Header("X-RateLimit-Limit", limit)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			metrics.Get().RateLimitExceededTotal.WithLabelValues(rl.config.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("X-RateLimit-Remaining", "0")
			util.RespondWithAPIError(c, apierrors.RateLimited("rate limit exceeded").
				WithDetails("retry after "+strconv.Itoa(seconds)+"s"))
			return
		}
		c.Next()
	}
}

// Allow counts one request for key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if rl.counter != nil {
		count, ttl, err := rl.counter.IncrWithTTL(ctx, "ratelimit:"+rl.config.Name+":"+key, rl.config.Window)
		if err == nil {
			if count > int64(rl.config.Limit) {
				if ttl <= 0 {
					ttl = rl.config.Window
				}
				return false, ttl
			}
			return true, 0
		}
		logger.Log.Warn("Redis rate limit failed, using in-memory limiter",
			zap.String("limiter", rl.config.Name),
			zap.Error(err),
		)
	}
	return rl.allowLocal(key)
}

func (rl *RateLimiter) allowLocal(key string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	if now.Sub(rl.lastPrune) > rl.config.Window*10 {
		for k, b := range rl.buckets {
			if b.idleSince(now) > rl.config.Window*2 {
				delete(rl.buckets, k)
			}
		}
		rl.lastPrune = now
	}
	bucket, ok := rl.buckets[key]
	if !ok {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate)
		bucket.lastRefill = now
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow(now)
}
