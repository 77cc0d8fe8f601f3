package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"soil-platform/internal/models"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ReferenceWriter is the part of the reference store the importer writes to
type ReferenceWriter interface {
	CreateReferencesBatch(ctx context.Context, refs []*models.SoilReference) error
}

// ImportService loads reference rows from CSV files
type ImportService struct {
	repo    ReferenceWriter
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// ImportResult contains import statistics
type ImportResult struct {
	TotalFiles        int
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Duration          time.Duration
	Errors            []string
}

// FileImportResult contains per-file import statistics
type FileImportResult struct {
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
}

// requiredColumns must appear in every CSV header
var requiredColumns = []string{"nutrient", "ideal_min", "ideal_max"}

// NewImportService creates a new import service
func NewImportService(repo ReferenceWriter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ImportService {
	return &ImportService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ImportPath imports a single CSV file, or every *.csv file when path is a directory
func (s *ImportService) ImportPath(ctx context.Context, path string, batchSize int) (*ImportResult, error) {
	startTime := time.Now()

	if batchSize <= 0 {
		batchSize = 500
	}

	s.logger.Info(ctx, "[IMPORT_START] Starting reference import", logging.Fields{
		"path":       path,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat import path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("failed to read directory: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no csv files found in %s", path)
		}
	}

	result := &ImportResult{
		TotalFiles: len(files),
		Errors:     make([]string, 0),
	}

	for _, filePath := range files {
		fileResult, err := s.importFile(ctx, filePath, batchSize)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to import %s: %v", filePath, err))
			s.logger.Error(ctx, "[IMPORT_FILE_ERROR] File import failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordImportError("file_error")
			continue
		}

		result.TotalRecords += fileResult.TotalRecords
		result.SuccessfulRecords += fileResult.SuccessfulRecords
		result.FailedRecords += fileResult.FailedRecords

		s.logger.Info(ctx, "[IMPORT_FILE_SUCCESS] File imported", logging.Fields{
			"file_path":          filePath,
			"total_records":      fileResult.TotalRecords,
			"successful_records": fileResult.SuccessfulRecords,
			"failed_records":     fileResult.FailedRecords,
			"stage":              "FILE_COMPLETE",
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.ImportDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[IMPORT_COMPLETE] Reference import completed", logging.Fields{
		"total_files":        result.TotalFiles,
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
		"error_count":        len(result.Errors),
		"stage":              "COMPLETE",
	})

	return result, nil
}

func (s *ImportService) importFile(ctx context.Context, filePath string, batchSize int) (*FileImportResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return s.Import(ctx, file, batchSize)
}

// Import reads reference rows from CSV with a header line and inserts them in batches.
// Rows that fail to parse are counted and skipped.
func (s *ImportService) Import(ctx context.Context, r io.Reader, batchSize int) (*FileImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	result := &FileImportResult{}
	batch := make([]*models.SoilReference, 0, batchSize)
	now := time.Now().UTC()

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.TotalRecords++
				result.FailedRecords++
				s.metrics.RecordImportError("parse_error")
				continue
			}
			return nil, fmt.Errorf("error reading file: %w", err)
		}

		result.TotalRecords++

		ref, err := parseRecord(columns, record)
		if err != nil {
			result.FailedRecords++
			s.metrics.RecordImportError("conversion_error")
			s.logger.Debug(ctx, "[IMPORT_RECORD_SKIPPED] Skipping invalid record", logging.Fields{
				"line":  result.TotalRecords + 1,
				"error": err.Error(),
			})
			continue
		}
		ref.UpdatedAt = now

		batch = append(batch, ref)

		if len(batch) >= batchSize {
			if err := s.repo.CreateReferencesBatch(ctx, batch); err != nil {
				return nil, fmt.Errorf("failed to insert batch: %w", err)
			}
			result.SuccessfulRecords += len(batch)
			batch = make([]*models.SoilReference, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := s.repo.CreateReferencesBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to insert final batch: %w", err)
		}
		result.SuccessfulRecords += len(batch)
	}

	return result, nil
}

// parseRecord converts one CSV record into a reference row with normalized context fields
func parseRecord(columns map[string]int, record []string) (*models.SoilReference, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	key, ok := models.ParseNutrient(field("nutrient"))
	if !ok {
		return nil, fmt.Errorf("unknown nutrient %q", field("nutrient"))
	}

	idealMin, err := strconv.ParseFloat(field("ideal_min"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ideal_min: %w", err)
	}
	idealMax, err := strconv.ParseFloat(field("ideal_max"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ideal_max: %w", err)
	}
	if err := (models.IdealRange{Min: idealMin, Max: idealMax}).Validate(); err != nil {
		return nil, err
	}

	ctx := models.Context{
		Crop:      field("crop"),
		Variety:   field("variety"),
		State:     field("state"),
		City:      field("city"),
		Extractor: field("extractor"),
		Stage:     field("stage"),
	}.Normalize()

	ref := &models.SoilReference{
		Nutrient:  string(key),
		Crop:      ctx.Crop,
		Variety:   ctx.Variety,
		State:     ctx.State,
		City:      ctx.City,
		Extractor: ctx.Extractor,
		Stage:     ctx.Stage,
		IdealMin:  idealMin,
		IdealMax:  idealMax,
	}

	if ref.AgeMinMonths, err = optionalFloat(field("age_min_months")); err != nil {
		return nil, fmt.Errorf("invalid age_min_months: %w", err)
	}
	if ref.AgeMaxMonths, err = optionalFloat(field("age_max_months")); err != nil {
		return nil, fmt.Errorf("invalid age_max_months: %w", err)
	}
	if unit := field("unit"); unit != "" {
		ref.Unit = &unit
	}
	if note := field("source_note"); note != "" {
		ref.SourceNote = &note
	}

	return ref, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
