// cmd/pipelines-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pipelinehub/internal/catalog"
	"pipelinehub/pkg/config"
	"pipelinehub/pkg/db"
	"pipelinehub/pkg/jwks"
	"pipelinehub/pkg/logger"
	"pipelinehub/pkg/middleware"
	"pipelinehub/pkg/pipelines"
	"pipelinehub/pkg/token"
)

func main() {
	// 1. Load configuration & initialize structured logger.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)
	defer func() { _ = appLog.Sync() }()
	if err := cfg.Validate(); err != nil {
		appLog.Fatalw("config", "err", err)
	}

	// 2. Tracing first so outbound clients built below join request traces.
	tracing, shutdownTracing := middleware.Tracing("pipelinehub", appLog)
	outbound := middleware.HTTPClient(cfg.ClientTimeout)

	// 3. Signing keys: fetched per request unless a cache is configured.
	var keySource jwks.Source = jwks.NewRemote(cfg.JWKSURL, outbound)
	switch cfg.JWKSCache {
	case "memory":
		keySource = jwks.NewMemoryCache(keySource, cfg.JWKSURL, cfg.JWKSCacheTTL)
	case "redis":
		keySource = jwks.NewRedisCache(keySource, db.MustRedis(cfg, appLog), "pipelinehub:jwks:"+cfg.JWKSURL, cfg.JWKSCacheTTL)
	}
	keys := jwks.NewResolver(keySource, appLog)
	validator := &token.Validator{Audience: cfg.Audience, Issuer: cfg.Issuer, Skew: cfg.ClockSkew}

	// 4. Pipeline store.
	store := mustStore(cfg, appLog, outbound)

	// 5. Build HTTP router and register middlewares.
	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recover(appLog, cfg.StrictStatus))
	router.Use(tracing)
	router.Use(middleware.Metrics())

	// 6. Basic operational endpoints.
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	// 7. Domain routes.
	auth := middleware.Authenticate(keys, validator, appLog, cfg.StrictStatus)
	catalog.RegisterRoutes(router, catalog.NewService(store, appLog), auth, appLog, cfg.StrictStatus)

	// 8. Configure and start HTTP server asynchronously.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		appLog.Infow("pipelines-service listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "jwks_cache", cfg.JWKSCache)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	// 9. Wait for termination signal (SIGINT/SIGTERM) to begin graceful shutdown.
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	// 10. Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	_ = shutdownTracing(ctx)
	fmt.Println("pipelines-service stopped")
}

func mustStore(cfg config.Config, log *zap.SugaredLogger, client *http.Client) pipelines.Store {
	switch cfg.StoreBackend {
	case "tables":
		store, err := pipelines.NewTableStore(pipelines.TableOptions{
			Account:          cfg.StorageAccount,
			Key:              cfg.StorageKey,
			ConnectionString: cfg.TablesConnectionString,
			Table:            cfg.TableName,
			HTTPClient:       client,
		}, log)
		if err != nil {
			log.Fatalw("table store", "err", err)
		}
		return store
	case "postgres":
		pool := db.MustConnect(cfg, log)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pipelines.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("ensure schema", "err", err)
		}
		if err := pipelines.SeedFromEnv(ctx, pool, cfg.PipelineSeedJSON); err != nil {
			log.Warnw("pipeline seed failed", "err", err)
		}
		return pipelines.NewPostgresStore(pool, log)
	}
	records, err := pipelines.LoadSeed(cfg.PipelineSeedJSON, cfg.PipelineSeedFile)
	if err != nil {
		log.Fatalw("pipeline seed", "err", err)
	}
	return pipelines.NewMemoryStore(log, records)
}
