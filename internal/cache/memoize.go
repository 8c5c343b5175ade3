// Package cache is the time-based memoized wrapper around expensive
// provider calls, backed by Redis or process memory.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"go.uber.org/zap"
)

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Memoize returns the cached value for key while it is fresh, otherwise calls
// fn and caches its result for ttl. Errors from fn are returned and never
// cached. Store failures degrade to calling fn.
func Memoize[T any](ctx context.Context, store Store, name, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	m := metrics.Get()

	if store != nil {
		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			logger.Log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				m.CacheHitsTotal.WithLabelValues(name).Inc()
				return v, nil
			}
		}
	}
	m.CacheMissesTotal.WithLabelValues(name).Inc()

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	if store != nil {
		raw, err := json.Marshal(v)
		if err == nil {
			err = store.Set(ctx, key, raw, ttl)
		}
		if err != nil {
			logger.Log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}
