package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/corpfetch/internal/archive"
	"github.com/JonMunkholm/corpfetch/internal/charset"
	"github.com/JonMunkholm/corpfetch/internal/config"
	"github.com/JonMunkholm/corpfetch/internal/core"
	"github.com/JonMunkholm/corpfetch/internal/logging"
	"github.com/JonMunkholm/corpfetch/internal/registry"
	"github.com/JonMunkholm/corpfetch/internal/store"
	"github.com/JonMunkholm/corpfetch/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"staging_dir", cfg.Staging.Dir,
		"fetch_max_concurrent", cfg.Fetch.MaxConcurrent,
		"registry_concurrency", cfg.Registry.Concurrency,
		"database", cfg.Database.Enabled(),
		"archive", cfg.Archive.Enabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	deps := core.Deps{}

	lookup, err := registry.NewClient(registry.Config{
		BaseURL:      cfg.Registry.BaseURL,
		APIKey:       cfg.Registry.APIKey,
		PageSize:     cfg.Registry.PageSize,
		Timeout:      cfg.Registry.Timeout,
		MaxRetries:   cfg.Registry.MaxRetries,
		RetryBackoff: cfg.Registry.RetryBackoff,
		RateLimit:    cfg.Registry.RateLimit,
		RateBurst:    cfg.Registry.RateBurst,
		Concurrency:  cfg.Registry.Concurrency,
	})
	if err != nil {
		slog.Error("failed to create registry client", "error", err)
		os.Exit(1)
	}
	deps.Registry = lookup

	if cfg.Database.Enabled() {
		pool, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if cfg.Database.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				slog.Error("failed to ensure schema", "error", err)
				os.Exit(1)
			}
		}
		deps.Store = pg
	}

	if cfg.Archive.Enabled() {
		arch, err := archive.New(archive.Config{
			Endpoint:     cfg.Archive.Endpoint,
			AccessKey:    cfg.Archive.AccessKey,
			SecretKey:    cfg.Archive.SecretKey,
			Bucket:       cfg.Archive.Bucket,
			Prefix:       cfg.Archive.Prefix,
			Region:       cfg.Archive.Region,
			UseSSL:       cfg.Archive.UseSSL,
			CreateBucket: cfg.Archive.CreateBucket,
		})
		if err != nil {
			slog.Error("failed to create archiver", "error", err)
			os.Exit(1)
		}
		if err := arch.EnsureBucket(ctx); err != nil {
			slog.Error("archive bucket unavailable", "error", err)
			os.Exit(1)
		}
		slog.Info("archiving enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
		deps.Archiver = arch
	}

	source, err := charset.Lookup(cfg.Download.SourceCharset)
	if err != nil {
		slog.Error("unsupported source charset", "charset", cfg.Download.SourceCharset, "error", err)
		os.Exit(1)
	}

	service, err := core.NewService(core.Config{
		StagingDir:    cfg.Staging.Dir,
		SourceCharset: source,
		Download: core.DownloadConfig{
			BaseURL:     cfg.Download.BaseURL,
			Referer:     cfg.Download.Referer,
			UserAgent:   cfg.Download.UserAgent,
			Cookie:      cfg.Download.Cookie,
			BearerToken: cfg.Download.BearerToken,
			Headers:     cfg.Download.Headers,
			Timeout:     cfg.Download.Timeout,
			MaxBytes:    cfg.Download.MaxBytes,
		},
		Timeout:       cfg.Fetch.Timeout,
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		MaxWaitTime:   cfg.Fetch.MaxWaitTime,
	}, deps)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active fetches to complete (with timeout)
		status := service.FetchLimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for fetches to complete", "active", status.Active)
			if err := service.WaitForFetches(shutdownCtx); err != nil {
				slog.Warn("fetches did not complete in time", "error", err)
			} else {
				slog.Info("all fetches completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// connectDatabase opens and pings a pool sized from cfg.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
