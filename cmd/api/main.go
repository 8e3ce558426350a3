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

	"markroom/api/internal/app"
	"markroom/api/internal/blob"
	"markroom/api/internal/cache"
	"markroom/api/internal/config"
	"markroom/api/internal/gitexport"
	"markroom/api/internal/search"
	"markroom/api/internal/store"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ExportReposDir, 0o755); err != nil {
		log.Fatalf("failed to create export repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	blobs, err := blob.New(ctx, blob.Options{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
		URLTTL:    cfg.BlobURLTTL,
	})
	if err != nil {
		log.Fatalf("object store connection failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	var statsCache *cache.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		statsCache, err = cache.NewRedisStore(cfg.RedisURL, cfg.StatsCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer statsCache.Close()
		log.Printf("project stats cache enabled")
	}

	exportService := gitexport.New(cfg.ExportReposDir)

	service := app.New(cfg, dataStore, blobs, statsCache, searchService, exportService)
	httpServer := app.NewHTTPServer(service)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-Request-ID"},
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsMiddleware.Handler(httpServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Markroom API listening on %s", cfg.Addr)
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
