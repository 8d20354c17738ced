package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/dqgen/internal/config"
	"github.com/JonMunkholm/dqgen/internal/core"
	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/metrics"
	"github.com/JonMunkholm/dqgen/internal/store"
	"github.com/JonMunkholm/dqgen/internal/web"
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

	tenants, err := config.LoadTenants(cfg.Workflow.TenantsPath, cfg.Workflow.ChangelogRoot)
	if err != nil {
		slog.Error("failed to load tenants", "path", cfg.Workflow.TenantsPath, "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"workflow_max_concurrent", cfg.Workflow.MaxConcurrent,
		"apply_to_store", cfg.Workflow.ApplyToStore,
		"changelog_root", tenants.ChangelogRoot,
		"tenants", len(tenants.Tenants),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	pool, err := store.Connect(ctx, store.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	m := metrics.New(true)
	service := core.NewService(store.New(pool), tenants, core.Options{
		MaxConcurrent: cfg.Workflow.MaxConcurrent,
		MaxWait:       cfg.Workflow.MaxWaitTime,
		Timeout:       cfg.Workflow.Timeout,
		ApplyToStore:  cfg.Workflow.ApplyToStore,
		Recorder:      m,
	})
	m.RegisterLimiter(service.LimiterStatus)

	server := web.NewServer(service, cfg, m.Handler())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight runs finish writing their files
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for workflow runs to complete", "active", status.Active)
			if err := service.Drain(shutdownCtx); err != nil {
				slog.Warn("workflow runs did not complete in time", "error", err)
			} else {
				slog.Info("all workflow runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
