package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krishkalaria12/snap-forge/auth"
	"github.com/krishkalaria12/snap-forge/config"
	"github.com/krishkalaria12/snap-forge/database"
	"github.com/krishkalaria12/snap-forge/generation"
	handler "github.com/krishkalaria12/snap-forge/handlers"
	"github.com/krishkalaria12/snap-forge/history"
	"github.com/krishkalaria12/snap-forge/jobs"
	"github.com/krishkalaria12/snap-forge/lineage"
	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/metrics"
	"github.com/krishkalaria12/snap-forge/providers"
	"github.com/krishkalaria12/snap-forge/repository"
	"github.com/krishkalaria12/snap-forge/router"
	"github.com/krishkalaria12/snap-forge/storage"
)

const jobCacheSize = 10000

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, cfg.LogMode, log)
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	// close the database connection
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error("error closing the database connection", "error", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	blobs, err := storage.NewGCSStore(ctx, log, cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSCredentialsFile)
	if err != nil {
		log.Fatal("failed to create GCS client", "error", err)
	}
	defer blobs.Close()
	if cfg.GCSMakePublic {
		if err := blobs.MakeBucketPublic(ctx); err != nil {
			log.Fatal("failed to make bucket public", "bucket", cfg.GCSBucketName, "error", err)
		}
	}

	var jobStore jobs.Store
	if cfg.RedisAddr != "" {
		rs, err := jobs.NewRedisStore(ctx, cfg.RedisAddr, cfg.JobTTL)
		if err != nil {
			log.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		defer rs.Close()
		jobStore = rs
	} else {
		jobStore = jobs.NewMemoryStore(jobCacheSize, cfg.JobTTL)
	}

	m := metrics.New()
	assets := repository.NewAssetRepository(db, log)
	users := repository.NewUserRepository(db, log)
	engine := lineage.NewEngine(assets, blobs, log, m)
	runner := jobs.NewRunner(jobStore, log, 10*time.Minute+cfg.ProviderTimeout)

	opts := []generation.Option{generation.WithProviderTimeout(cfg.ProviderTimeout)}
	if cfg.OpenAIAPIKey != "" {
		opts = append(opts, generation.WithImageProvider(providers.NewOpenAIImage(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ProviderTimeout, log)))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := providers.NewGeminiImage(ctx, cfg.GeminiAPIKey, log)
		if err != nil {
			log.Fatal("failed to create Gemini client", "error", err)
		}
		opts = append(opts, generation.WithImageProvider(gemini))
	}
	if cfg.FalAPIKey != "" {
		opts = append(opts, generation.WithVideoProvider(providers.NewFalVideo(cfg.FalAPIKey, cfg.FalBaseURL, cfg.ProviderTimeout, log), runner))
	}
	if cfg.LeonardoAPIKey != "" {
		opts = append(opts, generation.WithUpscaler(providers.NewLeonardoUpscaler(cfg.LeonardoAPIKey, cfg.LeonardoBaseURL, cfg.ProviderTimeout, log)))
	}

	authService := auth.NewService(users, auth.NewTokenService(cfg.JWTSecret, cfg.Issuer, cfg.Audience, cfg.TokenTTL), log)
	h := handler.New(handler.Deps{
		Auth:          authService,
		Generation:    generation.NewService(assets, blobs, engine, log, m, opts...),
		History:       history.NewService(assets),
		Lineage:       engine,
		Blobs:         blobs,
		Jobs:          jobStore,
		Log:           log,
		SignedURLTTL:  cfg.SignedURLTTL,
		SecureCookies: cfg.LogMode == "prod" || cfg.LogMode == "production",
	})

	app := router.NewApp(log)
	router.SetupRoutes(app, h, m)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is listening", "port", cfg.Port)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("server stopped", "error", err)
		}
	}

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	runner.Wait()
}
