// @title           Workboard API
// @version         0.1.0
// @description     Multi-tenant project and story tracking with session-based accounts.
// @basePath        /api/v1
// @schemes         http https
// @securityDefinitions.apiKey  Session
// @in                          header
// @name                         Authorization
// @description                  "Session token from POST /users/login: 'Bearer {token}'. Browsers use the session cookie instead."

// Package main is the entry point for the Workboard server binary.
// It dispatches the serve, migrate and version subcommands via a switch on
// os.Args so the binary's full CLI surface is readable in one place.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/workboard/workboard/internal/api"
	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db"
	"github.com/workboard/workboard/internal/middleware"
	"github.com/workboard/workboard/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Workboard v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down|force VERSION>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2], os.Args[3:])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func connect(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(),
		cfg.Database.MaxConnections, cfg.Database.MinIdleConnections, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "ssl_mode", cfg.Database.SSLMode)

	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Database.MigrateOnStart {
		slog.Info("running database migrations")
		if err := db.RunMigrations(database, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", version, "dirty", dirty)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if url := cfg.Security.RateLimiting.RedisURL; url != "" && cfg.Security.RateLimiting.Enabled {
		rdb, err = middleware.NewRedisClient(url)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis not reachable at startup; rate limited requests will fail open until it is", "error", err)
		}
	}

	if cfg.Telemetry.Enabled {
		telemetry.StartDBStatsCollector(ctx, database, cfg.Telemetry.DBStatsInterval)
	}

	// Prometheus is served on its own port so the scrape path stays off the public listener
	var metricsSrv *http.Server
	if cfg.Telemetry.Enabled && cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Telemetry.Metrics.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
		}
		go func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices, err := api.NewRouter(cfg, database, api.Options{Redis: rdb})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"tls", cfg.Security.TLS.Enabled,
			"redis_rate_limits", rdb != nil)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			bgServices.Shutdown()
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	// Stop background jobs, rate limiter sweeps and audit shippers
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string, args []string) error {
	database, err := connect(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	switch direction {
	case "up", "down":
		slog.Info("running migrations", "direction", direction)
		if err := db.RunMigrations(database, direction); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "force":
		if len(args) < 1 {
			return fmt.Errorf("usage: migrate force VERSION")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", args[0], err)
		}
		if err := db.ForceMigrationVersion(database, version); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate direction: %s (must be up, down or force)", direction)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
