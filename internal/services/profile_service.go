package services

import (
	"context"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/standards"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ProfileFinder is the part of the reference store the profile resolver reads from
type ProfileFinder interface {
	FindProfiles(ctx context.Context, filter repository.ProfileFilter) ([]*models.SoilProfile, error)
}

// ProfileService resolves the full crop profile for a context
type ProfileService struct {
	store    ProfileFinder
	defaults *standards.Table
	logger   *logging.ContextLogger
	metrics  *metrics.Collector
}

// NewProfileService creates a profile resolver. A nil store uses the offline profiles only.
func NewProfileService(store ProfileFinder, defaults *standards.Table, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ProfileService {
	return &ProfileService{
		store:    store,
		defaults: defaults,
		logger:   logger.WithFields(logging.Fields{"component": "profile_resolver"}),
		metrics:  metricsCollector,
	}
}

// GetProfile always returns a profile; Source tells whether it came from the store
func (s *ProfileService) GetProfile(ctx context.Context, c models.Context) models.SoilProfile {
	nc := c.Normalize()
	nc.AgeMonths = nil

	if s.store != nil {
		seen := make(map[string]bool, len(ladder))
		for _, step := range ladder {
			narrowed := step.narrow(nc)
			id := narrowed.CacheKey("profile")
			if seen[id] {
				continue
			}
			seen[id] = true

			profiles, err := s.store.FindProfiles(ctx, repository.ProfileFilter{
				Crop:      narrowed.Crop,
				Variety:   narrowed.Variety,
				State:     narrowed.State,
				City:      narrowed.City,
				Extractor: narrowed.Extractor,
				Stage:     narrowed.Stage,
				Limit:     1,
			})
			if err != nil {
				s.logger.Warn(ctx, "[PROFILE_LOOKUP_ERROR] Profile lookup failed, trying next rung", logging.Fields{
					"rung":  step.name,
					"error": err.Error(),
				})
				continue
			}
			if len(profiles) == 0 {
				continue
			}

			s.metrics.RecordProfileResolution(string(models.SourceRemote))
			s.logger.Debug(ctx, "[PROFILE_RESOLVED] Profile found in reference store", logging.Fields{
				"rung":       step.name,
				"profile_id": profiles[0].ID,
			})
			return *profiles[0]
		}
	}

	profile, ok := s.defaults.FallbackProfile(nc)
	if !ok {
		s.logger.Warn(ctx, "[PROFILE_NO_FALLBACK] No offline profiles available", logging.Fields{})
	}
	s.metrics.RecordProfileResolution(string(models.SourceFallback))

	return profile
}
