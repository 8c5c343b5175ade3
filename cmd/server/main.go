package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/handlers"
	"github.com/zfogg/beacon/internal/kernel"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/maintenance"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Log.Info("=== Beacon server starting ===",
		zap.String("environment", cfg.Server.Environment),
		zap.String("base_url", cfg.Server.BaseURL),
	)

	tp, err := telemetry.InitTracer(cfg.Telemetry, cfg.Server.Environment)
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	metrics.Initialize()

	ctx := context.Background()
	k, err := kernel.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	if err := database.Migrate(k.DB()); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}
	if tp != nil {
		k.OnCleanup(tp.Shutdown)
	}

	cleanup := maintenance.NewCleanupService(k.DB(), time.Hour)
	cleanup.Start()
	k.OnCleanup(cleanup.Stop)

	checks := make(map[string]handlers.HealthCheck)
	for name, check := range k.HealthChecks() {
		checks[name] = check
	}
	h := handlers.NewHandlers(handlers.Options{
		Auth:    k.Auth(),
		Configs: k.Configs(),
		Connect: k.Connect(),
		Publish: k.Publish(),
		Reports: k.Reports(),
		OG:      k.OpenGraph(),
		Checks:  checks,
		Service: cfg.Telemetry.ServiceName,
	})

	routerCfg := handlers.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ServiceName:    cfg.Telemetry.ServiceName,
		Tracing:        tp != nil,
	}
	if client := k.Redis(); client != nil {
		routerCfg.RateCounter = client
	}
	if cfg.Storage.Driver == "local" {
		routerCfg.FilesDir = cfg.Storage.LocalDir
	}
	r := handlers.NewRouter(h, routerCfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// PageSpeed sections can take most of a minute
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := k.Cleanup(shutdownCtx); err != nil {
		logger.Log.Error("Cleanup finished with errors", zap.Error(err))
	}
	logger.Log.Info("Server exited")
}
