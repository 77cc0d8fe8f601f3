package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"soil-platform/internal/config"
	"soil-platform/internal/repository"
	"soil-platform/internal/services"
	"soil-platform/internal/standards"
	"soil-platform/migrations"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

func main() {
	// Parse command-line flags
	path := flag.String("path", "./references", "CSV file or directory of CSV files with reference rows")
	batchSize := flag.Int("batch-size", 500, "Number of rows to insert in each batch")
	migrate := flag.Bool("migrate", false, "Apply the schema before importing")
	seedProfiles := flag.Bool("seed-profiles", false, "Store the default offline profiles after importing")
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

	logger := logging.NewStructuredLogger("soil-importer", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[IMPORTER_START] Starting reference import", logging.Fields{
		"version":       "1.0.0",
		"path":          *path,
		"batch_size":    *batchSize,
		"seed_profiles": *seedProfiles,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("soil_importer")

	// Initialize database
	db, err := database.Open(cfg.DatabaseSettings(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	if *migrate {
		if err := migrations.Apply(ctx, db, migrations.Up); err != nil {
			logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to apply schema", logging.Fields{}, err)
		}
	}

	// Initialize repository and services
	referenceRepo := repository.NewReferenceRepository(db, logger, metricsCollector)
	importService := services.NewImportService(referenceRepo, logger, metricsCollector)

	// Import data
	result, err := importService.ImportPath(ctx, *path, *batchSize)
	if err != nil {
		logger.Fatal(ctx, "[IMPORT_ERROR] Import failed", logging.Fields{
			"path": *path,
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("IMPORT COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:        %d\n", result.TotalFiles)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Successful Records: %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	if *seedProfiles {
		defaults, err := standards.Load(cfg.Resolver.DefaultsFile)
		if err != nil {
			logger.Fatal(ctx, "[IMPORTER_ERROR] Failed to load default profiles", logging.Fields{}, err)
		}

		seeded := 0
		for _, profile := range defaults.Profiles() {
			p := profile
			if err := referenceRepo.CreateProfile(ctx, &p); err != nil {
				logger.Error(ctx, "[SEED_PROFILE_ERROR] Failed to store profile", logging.Fields{
					"crop": p.Crop,
				}, err)
				continue
			}
			seeded++
		}
		fmt.Printf("Profiles Seeded:    %d\n", seeded)
	}

	logger.Info(ctx, "[IMPORTER_COMPLETE] Import completed", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
	})
}
