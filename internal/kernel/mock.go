package kernel

import (
	"time"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/connect"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/opengraph"
	"github.com/zfogg/beacon/internal/publish"
	"github.com/zfogg/beacon/internal/reports"
	"github.com/zfogg/beacon/internal/storage"
	"gorm.io/gorm"
)

// NewMock wires every service over db without touching the network at
// construction time: no Redis, an in-process cache, plain-text provider
// configs and no OAuth apps. objects may be nil. Provider clients point at
// the real APIs, so tests should only exercise flows that do not call them.
func NewMock(db *gorm.DB, objects storage.ObjectStore) *Kernel {
	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", BaseURL: "http://localhost:8787", FrontendURL: "http://localhost:3000"},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
		Cache:  config.CacheConfig{TTL: time.Minute},
	}
	k := New(cfg)
	k.SetDB(db)
	k.SetCache(cache.NewMemoryStore())
	if objects != nil {
		k.SetObjectStore(objects)
	}

	configs := integrations.NewGormStore(db, nil)
	k.SetConfigs(configs)
	k.SetAuth(auth.NewService(db, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, nil))

	connectSvc := connect.NewService(connect.Options{
		Store:       configs,
		OAuth:       &config.OAuthConfig{},
		StateSecret: []byte(cfg.Auth.JWTSecret),
		FrontendURL: cfg.Server.FrontendURL,
	})
	k.SetConnect(connectSvc)
	k.SetPublish(publish.NewService(publish.Options{DB: db, Store: configs, Tokens: connectSvc}))
	k.SetReports(reports.NewService(connectSvc, reports.Clients{}, k.Cache(), cfg.Cache.TTL))
	k.SetOpenGraph(opengraph.NewService(db, objects, nil))
	return k
}
