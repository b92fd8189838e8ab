// Copyright (c) 2026 Manhwari. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Manhwari HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis when configured (shared cache tiers).
//  5. Run database migrations (idempotent).
//  6. Wire the cache tiers, upstream client, and catalogue domain.
//  7. Start the background syncer and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/manhwari/internal/api"
	"github.com/taibuivan/manhwari/internal/cache"
	"github.com/taibuivan/manhwari/internal/catalogue"
	"github.com/taibuivan/manhwari/internal/platform/config"
	"github.com/taibuivan/manhwari/internal/platform/constants"
	"github.com/taibuivan/manhwari/internal/platform/migration"
	pgstore "github.com/taibuivan/manhwari/internal/platform/postgres"
	redisstore "github.com/taibuivan/manhwari/internal/platform/redis"
	"github.com/taibuivan/manhwari/internal/platform/sec"
	"github.com/taibuivan/manhwari/internal/syncer"
	"github.com/taibuivan/manhwari/internal/upstream"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "manhwari"))
	slog.SetDefault(log)

	log.Info("[Manhwari] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "manhwari"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Application-lifetime context. Cancelling it stops the cache sweepers,
	// the rate-limit janitor, and in-flight sync work.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(appCtx, 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis (optional) ───────────────────────────────────────────────
	// Without a REDIS_URL the cache tiers run in-process.
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := redisClient.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Auth Service ───────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	healthDeps := api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
	}
	if redisClient != nil {
		healthDeps.CheckCache = func() error {
			return redisstore.Ping(context.Background(), redisClient)
		}
	}
	liveness, readiness := api.NewHealthHandlers(healthDeps, log)

	// ── 8. Cache Tiers ────────────────────────────────────────────────────
	caches, err := buildCaches(appCtx, cfg, redisClient)
	must(log, err, "initialize cache tiers")

	// ── 9. Upstream Client ────────────────────────────────────────────────
	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:   cfg.UpstreamAPIURL,
		UserAgent: cfg.UpstreamUserAgent,
		Username:  cfg.UpstreamUsername,
		Secret:    cfg.UpstreamSecret,
	}, log)

	// ── 10. Domain Wiring ─────────────────────────────────────────────────
	store := catalogue.NewPostgresStore(pool)
	engine := catalogue.NewEngine(store, log)
	service := catalogue.NewService(store, engine, upstreamClient, caches, log)

	backgroundSyncer := syncer.New(service, candidateSource{store: store}, cfg.SyncBatchSize, log)
	service.SetRefresher(backgroundSyncer)
	must(log, backgroundSyncer.Start(cfg.CronSchedule()), "start background syncer")

	catalogueHandler := catalogue.NewHandler(service, backgroundSyncer)

	// ── 11. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Catalogue: catalogueHandler,
	}

	server := api.NewServer(appCtx, cfg, log, jwtSvc, handlers)

	// ── 12. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop the cron trigger and cancel in-flight synchronisation first so
	// the store is quiet before the pool closes.
	backgroundSyncer.Stop()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	appCancel()
	log.Info("server stopped cleanly")
}

// buildCaches constructs the three cache tiers, Redis-backed when a client
// is available and in-process otherwise.
func buildCaches(appCtx context.Context, cfg *config.Config, redisClient *goredis.Client) (catalogue.Caches, error) {
	if redisClient != nil {
		return catalogue.Caches{
			Entity: cache.NewRedisTier[*catalogue.Manhwa](redisClient, "manhwari:entity", cfg.EntityTTL()),
			Search: cache.NewRedisTier[*catalogue.SearchResponse](redisClient, "manhwari:search", cfg.SearchTTL()),
			Tags:   cache.NewRedisTier[map[string]string](redisClient, "manhwari:tags", constants.CacheTTLTag),
		}, nil
	}

	entityTier, err := cache.NewMemoryTier[*catalogue.Manhwa](appCtx, cfg.CacheMaxKeys, cfg.EntityTTL())
	if err != nil {
		return catalogue.Caches{}, err
	}
	searchTier, err := cache.NewMemoryTier[*catalogue.SearchResponse](appCtx, cfg.CacheMaxKeys, cfg.SearchTTL())
	if err != nil {
		return catalogue.Caches{}, err
	}
	tagTier, err := cache.NewMemoryTier[map[string]string](appCtx, cfg.CacheMaxKeys, constants.CacheTTLTag)
	if err != nil {
		return catalogue.Caches{}, err
	}

	return catalogue.Caches{
		Entity: entityTier,
		Search: searchTier,
		Tags:   tagTier,
	}, nil
}

// candidateSource adapts the catalogue store to the syncer's candidate
// contract. The syncer deliberately does not import the catalogue package.
type candidateSource struct {
	store catalogue.Store
}

func (source candidateSource) ListOutdated(ctx context.Context, limit int) ([]syncer.Candidate, error) {
	rows, err := source.store.ListOutdated(ctx, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]syncer.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, syncer.Candidate{
			ID:           row.ID,
			UpstreamID:   row.UpstreamID,
			Failed:       row.Failed,
			LastSyncedAt: row.LastSyncedAt,
		})
	}
	return candidates, nil
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
