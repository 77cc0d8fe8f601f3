package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"soil-platform/internal/config"
	"soil-platform/migrations"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

func main() {
	direction := flag.String("direction", migrations.Up, "Migration direction: up or down")
	flag.Parse()

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

	files, err := migrations.Files(cfg.Database.Driver, *direction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list migrations: %v\n", err)
		os.Exit(1)
	}

	// Progress goes to stdout; the connection layer only needs to report errors
	logger := logging.NewStructuredLoggerWithWriter("soil-migrate", "1.0.0", logging.ErrorLevel, io.Discard)
	if cfg.Logging.Level == "debug" {
		logger = logging.NewStructuredLogger("soil-migrate", "1.0.0", logging.DebugLevel)
	}
	metricsCollector := metrics.NewCollectorWithRegisterer("soil_migrate", prometheus.NewRegistry())

	// Connect to database
	db, err := database.Open(cfg.DatabaseSettings(), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	ctx := context.Background()
	for _, name := range files {
		content, err := migrations.Read(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Running migration: %s\n", name)

		// Execute migration
		if _, err := db.ExecContext(ctx, "migration", content); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Migration completed successfully")
}
