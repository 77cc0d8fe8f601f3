package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soil-platform/internal/config"
	"soil-platform/internal/handlers"
	"soil-platform/internal/repository"
	"soil-platform/internal/services"
	"soil-platform/internal/standards"
	"soil-platform/migrations"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("soil-api", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting soil platform API server", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"db_name":     cfg.Database.Database,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("soil_platform")

	// Load default ranges and offline profiles
	defaults, err := standards.Load(cfg.Resolver.DefaultsFile)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load default ranges", logging.Fields{
			"defaults_file": cfg.Resolver.DefaultsFile,
		}, err)
	}

	// Initialize database
	db, err := database.Open(cfg.DatabaseSettings(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// SQLite stores are local, so the server owns their schema
	if db.DriverName() == database.DriverSQLite {
		if err := migrations.Apply(ctx, db, migrations.Up); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to prepare sqlite schema", logging.Fields{}, err)
		}
	}

	// Initialize repository
	referenceRepo := repository.NewReferenceRepository(db, logger, metricsCollector)

	// Initialize services
	rangeService := services.NewIdealRangeService(referenceRepo, defaults, logger, metricsCollector,
		services.WithLookupTimeout(cfg.Resolver.LookupTimeout),
		services.WithConcurrency(cfg.Resolver.Concurrency),
	)
	profileService := services.NewProfileService(referenceRepo, defaults, logger, metricsCollector)
	evaluationService := services.NewEvaluationService(rangeService, logger, metricsCollector)
	referenceService := services.NewReferenceService(referenceRepo, logger, metricsCollector)

	// Initialize handlers
	soilHandler := handlers.NewSoilHandler(
		rangeService,
		profileService,
		evaluationService,
		referenceService,
		referenceRepo,
		logger,
		metricsCollector,
	)

	// Setup router
	routerOpts := handlers.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     promhttp.Handler(),
	}
	if cfg.Server.AccessLog {
		routerOpts.AccessLog = os.Stdout
	}
	router := handlers.NewRouter(soilHandler, routerOpts)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// SIGHUP re-reads the configuration and applies its log level
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go reloadLogLevel(logger, hup, config.LoadConfig)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// reloadLogLevel applies the configured log level each time a signal arrives on hup
func reloadLogLevel(logger *logging.StructuredLogger, hup <-chan os.Signal, load func() (*config.Config, error)) {
	ctx := context.Background()
	for range hup {
		cfg, err := load()
		if err != nil {
			logger.Error(ctx, "[CONFIG_RELOAD_ERROR] Failed to reload configuration", logging.Fields{}, err)
			continue
		}

		level := logging.ParseLevel(cfg.Logging.Level)
		logger.SetLevel(level)
		logger.Info(ctx, "[CONFIG_RELOAD] Log level updated", logging.Fields{
			"level": level.String(),
		})
	}
}
