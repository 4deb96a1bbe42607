package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leafsii/postboard-backend/internal/config"
	"github.com/leafsii/postboard-backend/internal/db"
	"github.com/leafsii/postboard-backend/internal/log"
)

// seed writes the sample posts into the configured store. With the default
// memory backend the rows vanish on exit, so point PB_DB_TYPE at postgres
// or sqlite.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Database.Type == db.TypeMemory {
		logger.Warnw("Seeding the in-memory store has no lasting effect")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := db.NewRepository(ctx, db.Config{
		Type:        cfg.Database.Type,
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
		AutoMigrate: true,
	}, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize database", "error", err)
	}
	defer repo.Close()

	created, err := db.Seed(ctx, repo, logger)
	if err != nil {
		logger.Fatalw("Seeding failed", "error", err, "created", len(created))
	}
	for _, p := range created {
		fmt.Printf("%d\t%s\n", p.ID, p.Title)
	}
}
