package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/kernel"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/seed"
	"go.uber.org/zap"
)

func main() {
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "dev", "test", "clean":
	default:
		fmt.Println("Usage: seed [dev [orgs]|test|clean]")
		fmt.Println("  dev   - Seed development database with realistic data (default 5 organizations)")
		fmt.Println("  test  - Seed the fixed end-to-end test accounts")
		fmt.Println("  clean - Remove all seed data (use with caution)")
		os.Exit(1)
	}

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

	ctx := context.Background()
	k, err := kernel.Build(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer k.Cleanup(ctx)

	if err := database.Migrate(k.DB()); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	seeder := seed.NewSeeder(k.DB(), k.Auth(), k.OpenGraph())
	switch command {
	case "dev":
		orgs := 5
		if len(os.Args) > 2 {
			if orgs, err = strconv.Atoi(os.Args[2]); err != nil || orgs < 1 {
				logger.Log.Fatal("Organization count must be a positive number", zap.String("value", os.Args[2]))
			}
		}
		logger.Log.Info("Seeding development database...", zap.Int("orgs", orgs))
		err = seeder.SeedDev(ctx, orgs)
	case "test":
		logger.Log.Info("Seeding test accounts...")
		err = seeder.SeedTest(ctx)
	case "clean":
		logger.Log.Info("Cleaning seed data...")
		err = seeder.Clean(ctx)
	}
	if err != nil {
		logger.Log.Fatal("Seeding failed", zap.String("command", command), zap.Error(err))
	}
	logger.Log.Info("Done", zap.String("command", command), zap.String("password", seed.TestPassword))
}
