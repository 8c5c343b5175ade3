// Package kernel holds the application's long-lived dependencies and builds
// them from configuration. The server, the CLI and the seeder share it.
package kernel

import (
	"context"
	"errors"
	"sync"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/connect"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/opengraph"
	"github.com/zfogg/beacon/internal/publish"
	"github.com/zfogg/beacon/internal/reports"
	"github.com/zfogg/beacon/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kernel holds all application dependencies and provides type-safe access.
type Kernel struct {
	cfg *config.Config

	// Core infrastructure
	db      *gorm.DB
	redis   *cache.RedisClient
	cache   cache.Store
	objects storage.ObjectStore

	// Services
	configs integrations.Store
	auth    *auth.Service
	connect *connect.Service
	publish *publish.Service
	reports *reports.Service
	og      *opengraph.Service

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates a new empty kernel.
// Services should be registered using Set* methods.
func New(cfg *config.Config) *Kernel {
	return &Kernel{cfg: cfg}
}

// Config returns the configuration the kernel was built from
func (k *Kernel) Config() *config.Config {
	return k.cfg
}

// SetDB registers the database connection
func (k *Kernel) SetDB(db *gorm.DB) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.db = db
	return k
}

// DB returns the database connection
func (k *Kernel) DB() *gorm.DB {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.db
}

// SetRedis registers the Redis client. It is optional.
func (k *Kernel) SetRedis(client *cache.RedisClient) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.redis = client
	return k
}

// Redis returns the Redis client, or nil when Redis is not configured
func (k *Kernel) Redis() *cache.RedisClient {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.redis
}

// SetCache registers the report cache
func (k *Kernel) SetCache(store cache.Store) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cache = store
	return k
}

// Cache returns the report cache
func (k *Kernel) Cache() cache.Store {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cache
}

// SetObjectStore registers the store rendered images are written to
func (k *Kernel) SetObjectStore(store storage.ObjectStore) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.objects = store
	return k
}

// ObjectStore returns the object store
func (k *Kernel) ObjectStore() storage.ObjectStore {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.objects
}

// SetConfigs registers the provider configuration store
func (k *Kernel) SetConfigs(store integrations.Store) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.configs = store
	return k
}

// Configs returns the provider configuration store
func (k *Kernel) Configs() integrations.Store {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.configs
}

// SetAuth registers the authentication service
func (k *Kernel) SetAuth(svc *auth.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.auth = svc
	return k
}

// Auth returns the authentication service
func (k *Kernel) Auth() *auth.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.auth
}

// SetConnect registers the connection service
func (k *Kernel) SetConnect(svc *connect.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connect = svc
	return k
}

// Connect returns the connection service
func (k *Kernel) Connect() *connect.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.connect
}

// SetPublish registers the publishing service
func (k *Kernel) SetPublish(svc *publish.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.publish = svc
	return k
}

// Publish returns the publishing service
func (k *Kernel) Publish() *publish.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.publish
}

// SetReports registers the reporting service
func (k *Kernel) SetReports(svc *reports.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reports = svc
	return k
}

// Reports returns the reporting service
func (k *Kernel) Reports() *reports.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.reports
}

// SetOpenGraph registers the Open Graph template service
func (k *Kernel) SetOpenGraph(svc *opengraph.Service) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.og = svc
	return k
}

// OpenGraph returns the Open Graph template service
func (k *Kernel) OpenGraph() *opengraph.Service {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.og
}

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order.
func (k *Kernel) OnCleanup(fn func(context.Context) error) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cleanupFuncs = append(k.cleanupFuncs, fn)
	return k
}

// Cleanup runs every registered cleanup function, newest first, and joins
// their errors.
func (k *Kernel) Cleanup(ctx context.Context) error {
	k.mu.Lock()
	funcs := k.cleanupFuncs
	k.cleanupFuncs = nil
	k.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			logger.Log.Error("Cleanup failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks that all required dependencies are registered.
func (k *Kernel) Validate() error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var missing []string
	required := []struct {
		name  string
		isNil bool
	}{
		{"database", k.db == nil},
		{"provider config store", k.configs == nil},
		{"auth service", k.auth == nil},
		{"connect service", k.connect == nil},
		{"publish service", k.publish == nil},
		{"reports service", k.reports == nil},
		{"Open Graph service", k.og == nil},
	}
	for _, dep := range required {
		if dep.isNil {
			missing = append(missing, dep.name)
		}
	}
	if len(missing) > 0 {
		return NewInitializationError("Missing required dependencies", missing)
	}

	if k.redis == nil {
		logger.Log.Warn("Redis not configured, rate limits and caches are per process")
	}
	if k.objects == nil {
		logger.Log.Warn("No object store, rendered images are not persisted")
	}
	return nil
}
