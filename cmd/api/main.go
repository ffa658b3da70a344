package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nercollab/internal/app"
	"nercollab/internal/blob"
	"nercollab/internal/config"
	"nercollab/internal/events"
	"nercollab/internal/gitrepo"
	"nercollab/internal/ledgercache"
	"nercollab/internal/search"
	"nercollab/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	if len(applied) > 0 {
		log.Printf("applied migrations: %s", strings.Join(applied, ", "))
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatalf("failed to create history dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:   dataStore,
		History: gitrepo.New(cfg.HistoryDir),
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, search.NewPgFTS(db))

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := ledgercache.NewRedisStore(cfg.RedisURL, dataStore, cfg.LedgerCacheTTL)
		if err != nil {
			log.Printf("WARNING: redis unavailable, ledger cache and live events disabled: %v", err)
		} else {
			defer cache.Close()
			log.Printf("Using Redis for ledger cache and live events")
			deps.Ledgers = cache
			deps.Events = events.NewBus(cache.Client(), cfg.CORSOrigin)
		}
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err := blob.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object storage client failed: %v", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: export archive disabled: %v", err)
		} else {
			deps.Archive = archive
		}
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("nercollab API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
