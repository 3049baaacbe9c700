package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/config"
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/database"
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange"
	_ "github.com/GaryOcean428/ApprenticeTracker-sub001/internal/exchange/entities" // Register all entity types
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/logging"
	"github.com/GaryOcean428/ApprenticeTracker-sub001/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_file_size", cfg.Upload.MaxFileSize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Apply pending schema migrations before serving traffic
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Build the extraction client for the agreement workflow
	extractor, err := exchange.NewExtractionClient(exchange.ExtractionConfig{
		Endpoint: cfg.Extraction.Endpoint,
		Model:    cfg.Extraction.Model,
		APIKey:   cfg.Extraction.APIKey,
	})
	if err != nil {
		slog.Error("failed to create extraction client", "error", err)
		os.Exit(1)
	}

	// Wire the service from its persistence pieces
	service := exchange.NewService(
		exchange.NewPGJobStore(pool),
		exchange.NewPGEntitySink(pool),
		exchange.NewPGAgreementStore(pool),
		extractor,
		exchange.Options{
			MaxJobErrors: cfg.Upload.MaxJobErrors,
			JobTimeout:   cfg.Upload.JobTimeout,
			ExportDir:    cfg.Export.Dir,
			DraftTTL:     cfg.Extraction.DraftTTL,
		},
	)

	slog.Info("entities registered", "count", exchange.EntityCount())

	// Create server with config
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running import/export executors finish (with timeout)
		if err := service.WaitForJobs(shutdownCtx); err != nil {
			slog.Warn("jobs did not complete in time", "error", err)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
