package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"time"

	"notaspese/internal/amqp"
	"notaspese/internal/auth"
	"notaspese/internal/backend"
	"notaspese/internal/cache"
	"notaspese/internal/cli"
	"notaspese/internal/config"
	"notaspese/internal/core"
	apphttp "notaspese/internal/http"
	"notaspese/internal/log"
	"notaspese/internal/objectstore"
	"notaspese/internal/services"
	gsheet "notaspese/internal/sheets/google"
	memsheet "notaspese/internal/sheets/memory"

	"golang.org/x/crypto/bcrypt"
)

const (
	monthCacheSize     = 1000
	monthCacheTTL      = 5 * time.Minute
	revocationCapacity = 10000
	cacheSweepInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	blobs := cli.InitObjectStore(ctx, logger, cfg)

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)

	revocations, closeRevocations := initRevocations(ctx, logger, cfg, caches)
	sessions, err := initSessions(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize sessions", log.FieldError, err)
		os.Exit(1)
	}
	identity, err := auth.NewService(repo, auth.NewBcryptHasher(bcrypt.DefaultCost), sessions, revocations, logger)
	if err != nil {
		logger.Error("Failed to initialize auth service", log.FieldError, err)
		os.Exit(1)
	}

	// Without a broker the worker's periodic sweep still picks entries up
	var publisher services.OrphanPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("AMQP publisher enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, orphaned attachments wait for the worker sweep")
	}

	months := cache.NewLRUCache[[]core.MonthCount](monthCacheSize, monthCacheTTL)
	caches.Register(months)
	caches.StartCleanup(cacheSweepInterval)

	orphans := services.NewOrphanRecorder(repo, publisher, logger)
	expenses := services.NewExpenseService(repo, blobs.Store, orphans, logger)
	reports := services.NewReportService(repo, blobs.Store, months, logger)
	expenses.Subscribe(reports)
	profiles := services.NewProfileService(repo, blobs.Store, identity, orphans, logger)

	if err := initExporter(ctx, logger, cfg, reports); err != nil {
		logger.Error("Failed to initialize report exporter", log.FieldError, err)
		os.Exit(1)
	}

	signingKey, err := fileSigningKey(cfg)
	if err != nil {
		logger.Error("Failed to prepare file signing key", log.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		SecureCookies:      cfg.SecureCookies(),
		MaxUploadBytes:     cfg.MaxUploadBytes,
		SignedURLTTL:       cfg.SignedURLTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Auth:     identity,
		Expenses: expenses,
		Reports:  reports,
		Profiles: profiles,
		Blobs:    blobs.Store,
		Signer:   objectstore.NewURLSigner(signingKey, cfg.BaseURL),
		DB:       repo,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
		closeRevocations()
		if blobs.Cleanup != nil {
			if err := blobs.Cleanup(); err != nil {
				logger.Error("Failed to close object store", log.FieldError, err)
			}
		}
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close database", log.FieldError, err)
		}
	})

	logger.Info("Starting notaspese server",
		"port", cfg.Port,
		"base_url", cfg.BaseURL,
		"storage_backend", cfg.StorageBackend,
		"export_backend", cfg.ExportBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// initSessions signs sessions with SESSION_SECRET, or with a random key that
// does not survive a restart.
func initSessions(logger *log.Logger, cfg *config.Config) (*auth.SessionManager, error) {
	if cfg.SessionSecret != "" {
		return auth.NewSessionManager([]byte(cfg.SessionSecret), cfg.SessionTTL)
	}
	logger.Warn("SESSION_SECRET not set, sessions and file links will not survive a restart")
	return auth.NewEphemeralSessionManager(cfg.SessionTTL)
}

// initRevocations keeps revoked sessions in Redis when REDIS_URL is set and
// in a swept in-process LRU otherwise.
func initRevocations(ctx context.Context, logger *log.Logger, cfg *config.Config, caches *cache.Manager) (auth.RevocationStore, func()) {
	if cfg.RedisURL != "" {
		client, err := auth.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect to Redis", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Session revocations stored in Redis")
		return auth.NewRedisRevocationStore(client), func() {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close Redis client", log.FieldError, err)
			}
		}
	}

	store := auth.NewMemoryRevocationStore(revocationCapacity, cfg.SessionTTL)
	caches.Register(store.Cache())
	return store, func() {}
}

// fileSigningKey reuses SESSION_SECRET; the signed links carry their own
// audience so the two token kinds cannot be swapped.
func fileSigningKey(cfg *config.Config) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func initExporter(ctx context.Context, logger *log.Logger, cfg *config.Config, reports *services.ReportService) error {
	switch cfg.ExportBackend {
	case "sheets":
		opts := backend.GoogleClientOptions(cfg.GoogleCredentialsFile, cfg.GoogleCredentialsJSON)
		if cfg.GoogleOAuthTokenFile != "" {
			var err error
			opts, err = gsheet.OAuthClientOptions(ctx, cfg.GoogleOAuthClientFile, cfg.GoogleOAuthTokenFile)
			if err != nil {
				return err
			}
		}
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, logger, opts...)
		if err != nil {
			return err
		}
		reports.SetExporter(client)
		logger.Info("Report export to Google Sheets enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		reports.SetExporter(memsheet.New())
		logger.Info("Report export kept in memory")
	}
	return nil
}
