package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leafsii/postboard-backend/internal/api"
	"github.com/leafsii/postboard-backend/internal/config"
	"github.com/leafsii/postboard-backend/internal/db"
	"github.com/leafsii/postboard-backend/internal/log"
	"github.com/leafsii/postboard-backend/internal/metrics"
	"github.com/leafsii/postboard-backend/internal/posts"
	"github.com/leafsii/postboard-backend/internal/store"
	"github.com/leafsii/postboard-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting postboard API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db", cfg.Database.Type,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("postboard")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := db.NewRepository(ctx, db.Config{
		Type:        cfg.Database.Type,
		PostgresDSN: cfg.Database.PostgresDSN,
		SQLitePath:  cfg.Database.SQLitePath,
		AutoMigrate: cfg.Database.AutoMigrate,
	}, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize database", "error", err)
	}
	defer repo.Close()

	if cfg.Database.Seed {
		if _, err := db.Seed(ctx, repo, logger); err != nil {
			logger.Fatalw("Failed to seed database", "error", err)
		}
	}

	// Setup cache; an empty address keeps it in-process
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache connection established", "redis", cfg.Cache.RedisAddr != "")

	svc := posts.NewService(repo, logger,
		posts.WithCache(cache, cfg.Cache.TTL),
		posts.WithMetrics(metricsObj),
	)

	// Setup WebSocket hub
	wsHub := ws.NewHub(cache, logger, metricsObj, cfg.Security.WSAllowedOrigins)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go wsHub.Run(hubCtx)

	handler := api.NewHandler(svc, wsHub, logger)
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Server.RequestTimeout, metricsHandler)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// WriteTimeout stays zero: /v1/ws connections are long-lived and the
	// other routes are bounded by the request timeout middleware.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Server startup failed", "error", err)
		}
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		hubCancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
