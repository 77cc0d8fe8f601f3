package services

import (
	"context"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ReferenceService handles raw reference row operations
type ReferenceService struct {
	repo    repository.ReferenceRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReferenceService creates a new reference service
func NewReferenceService(repo repository.ReferenceRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ReferenceService {
	return &ReferenceService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetReferences lists reference rows with pagination
func (s *ReferenceService) GetReferences(ctx context.Context, limit, offset int) ([]*models.SoilReference, error) {
	return s.repo.ListReferences(ctx, limit, offset)
}

// GetReference retrieves a single reference row
func (s *ReferenceService) GetReference(ctx context.Context, id int64) (*models.SoilReference, error) {
	return s.repo.GetReference(ctx, id)
}
