package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/connect"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/email"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/opengraph"
	"github.com/zfogg/beacon/internal/providers/google"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"github.com/zfogg/beacon/internal/publish"
	"github.com/zfogg/beacon/internal/reports"
	"github.com/zfogg/beacon/internal/storage"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.uber.org/zap"
)

// Build connects to the database, Redis and object storage described by cfg
// and wires every service on top of them. The database must already be
// migrated. Call Cleanup on the returned kernel to release connections.
func Build(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	k := New(cfg)

	if err := database.Initialize(cfg); err != nil {
		return nil, err
	}
	k.SetDB(database.DB)
	k.OnCleanup(func(context.Context) error { return database.Close() })

	var reportCache cache.Store = cache.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// Redis is an optimization only
			logger.Log.Warn("Redis unavailable, using in-process cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			k.SetRedis(client)
			k.OnCleanup(func(context.Context) error { return client.Close() })
			reportCache = cache.NewRedisStore(client, "beacon:")
		}
	}
	k.SetCache(reportCache)

	objects, err := storage.New(ctx, cfg.Storage, cfg.Server.BaseURL+"/files")
	if err != nil {
		_ = k.Cleanup(ctx)
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}
	k.SetObjectStore(objects)

	var encryptor *integrations.Encryptor
	if cfg.Auth.EncryptionKey != "" {
		encryptor, err = integrations.NewEncryptor(cfg.Auth.EncryptionKey)
		if err != nil {
			_ = k.Cleanup(ctx)
			return nil, err
		}
	} else {
		logger.Log.Warn("CONFIG_ENCRYPTION_KEY not set, provider tokens are stored unencrypted")
	}
	configs := integrations.NewGormStore(k.db, encryptor)
	k.SetConfigs(configs)

	var mailer email.Sender
	if cfg.Email.Enabled {
		svc, err := email.NewEmailService(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Server.FrontendURL)
		if err != nil {
			_ = k.Cleanup(ctx)
			return nil, fmt.Errorf("failed to initialize email: %w", err)
		}
		mailer = svc
	}
	k.SetAuth(auth.NewService(k.db, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, mailer))

	googleClient := google.New(google.DefaultEndpoints(), cfg.Google.APIKey)
	metaClient := meta.New("", cfg.Facebook.GraphVersion)
	linkedinClient := linkedin.New("", cfg.LinkedIn.APIVersion)
	webflowClient := webflow.New(cfg.Webflow.APIBaseURL)

	connectSvc := connect.NewService(connect.Options{
		Store: configs,
		OAuth: config.LoadOAuthConfig(cfg),
		Clients: connect.Clients{
			Google:   googleClient,
			Meta:     metaClient,
			LinkedIn: linkedinClient,
			Webflow:  webflowClient,
		},
		StateSecret:        []byte(cfg.Auth.JWTSecret),
		FrontendURL:        cfg.Server.FrontendURL,
		LinkedInOrgPosting: cfg.LinkedIn.OrgPosting,
		HTTPClient:         telemetry.NewInstrumentedHTTPClient(30 * time.Second),
	})
	k.SetConnect(connectSvc)

	k.SetPublish(publish.NewService(publish.Options{
		DB:     k.db,
		Store:  configs,
		Tokens: connectSvc,
		Clients: publish.Clients{
			Meta:     metaClient,
			LinkedIn: linkedinClient,
			Webflow:  webflowClient,
		},
		LinkedInPostsAPI: cfg.LinkedIn.UsePostsAPI,
	}))

	k.SetReports(reports.NewService(connectSvc, reports.Clients{
		Google:   googleClient,
		Meta:     metaClient,
		LinkedIn: linkedinClient,
		Webflow:  webflowClient,
	}, reportCache, cfg.Cache.TTL))

	k.SetOpenGraph(opengraph.NewService(k.db, objects, opengraph.NewHTTPFetcher(10*time.Second)))

	if err := k.Validate(); err != nil {
		_ = k.Cleanup(ctx)
		return nil, err
	}
	return k, nil
}

// HealthChecks returns the dependency probes reported by the health endpoint.
func (k *Kernel) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := k.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if client := k.Redis(); client != nil {
		checks["redis"] = client.Ping
	}
	return checks
}
