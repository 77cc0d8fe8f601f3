package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/standards"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ReferenceFinder is the part of the reference store the resolver reads from
type ReferenceFinder interface {
	FindReferences(ctx context.Context, filter repository.ReferenceFilter) ([]*models.SoilReference, error)
}

// rung narrows the normalized context to the fields one lookup filters on
type rung struct {
	name   string
	narrow func(nc models.NormalizedContext) models.NormalizedContext
}

// ladder is tried in order; the first rung returning a valid row wins
var ladder = []rung{
	{
		name:   "full",
		narrow: func(nc models.NormalizedContext) models.NormalizedContext { return nc },
	},
	{
		name: "crop_variety_extractor",
		narrow: func(nc models.NormalizedContext) models.NormalizedContext {
			return models.NormalizedContext{Crop: nc.Crop, Variety: nc.Variety, Extractor: nc.Extractor}
		},
	},
	{
		name: "crop_extractor",
		narrow: func(nc models.NormalizedContext) models.NormalizedContext {
			return models.NormalizedContext{Crop: nc.Crop, Extractor: nc.Extractor}
		},
	},
	{
		name: "crop",
		narrow: func(nc models.NormalizedContext) models.NormalizedContext {
			return models.NormalizedContext{Crop: nc.Crop}
		},
	},
}

// IdealRangeService resolves the ideal range of a nutrient for a crop context
type IdealRangeService struct {
	store         ReferenceFinder
	defaults      *standards.Table
	logger        *logging.ContextLogger
	metrics       *metrics.Collector
	lookupTimeout time.Duration
	concurrency   int

	cache sync.Map // cache key -> models.ResolvedRange, set once
	group singleflight.Group
}

// IdealRangeOption configures an IdealRangeService
type IdealRangeOption func(*IdealRangeService)

// WithLookupTimeout bounds every store lookup
func WithLookupTimeout(d time.Duration) IdealRangeOption {
	return func(s *IdealRangeService) { s.lookupTimeout = d }
}

// WithConcurrency caps the goroutines ResolveMany starts
func WithConcurrency(n int) IdealRangeOption {
	return func(s *IdealRangeService) { s.concurrency = n }
}

// NewIdealRangeService creates a resolver. A nil store resolves every nutrient from defaults.
func NewIdealRangeService(store ReferenceFinder, defaults *standards.Table, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, opts ...IdealRangeOption) *IdealRangeService {
	s := &IdealRangeService{
		store:       store,
		defaults:    defaults,
		logger:      logger.WithFields(logging.Fields{"component": "ideal_range_resolver"}),
		metrics:     metricsCollector,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the ideal range for a nutrient. It never fails: store errors degrade
// to the default table, and unknown nutrients get a zero range.
func (s *IdealRangeService) Resolve(ctx context.Context, nutrient string, c models.Context) models.ResolvedRange {
	key, known := models.ParseNutrient(nutrient)
	nc := c.Normalize()
	cacheKey := nc.CacheKey(key)

	if v, ok := s.cache.Load(cacheKey); ok {
		s.metrics.RangeCacheHits.Inc()
		return v.(models.ResolvedRange)
	}

	v, _, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		if v, ok := s.cache.Load(cacheKey); ok {
			s.metrics.RangeCacheHits.Inc()
			return v, nil
		}
		s.metrics.RangeCacheMisses.Inc()

		resolved := s.resolve(ctx, key, known, nc)
		s.metrics.RecordResolution(string(resolved.Source))

		actual, _ := s.cache.LoadOrStore(cacheKey, resolved)
		return actual, nil
	})

	return v.(models.ResolvedRange)
}

// ResolveMany resolves several nutrients in parallel, keyed by the names requested
func (s *IdealRangeService) ResolveMany(ctx context.Context, nutrients []string, c models.Context) map[string]models.ResolvedRange {
	results := make([]models.ResolvedRange, len(nutrients))

	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, n := range nutrients {
		g.Go(func() error {
			results[i] = s.Resolve(ctx, n, c)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.ResolvedRange, len(nutrients))
	for i, n := range nutrients {
		out[n] = results[i]
	}
	return out
}

// resolve walks the ladder. A failed lookup counts as an empty one.
func (s *IdealRangeService) resolve(ctx context.Context, key models.NutrientKey, known bool, nc models.NormalizedContext) models.ResolvedRange {
	unit := s.defaults.Unit(key)

	if s.store != nil {
		seen := make(map[string]bool, len(ladder))
		for _, step := range ladder {
			narrowed := step.narrow(nc)
			id := narrowed.CacheKey(key)
			if seen[id] {
				continue
			}
			seen[id] = true

			ref, err := s.lookup(ctx, key, narrowed)
			if err != nil {
				s.metrics.RecordLookup(step.name, "error")
				s.metrics.RecordLookupError(string(key))
				s.logger.Warn(ctx, "[RANGE_LOOKUP_ERROR] Reference lookup failed, trying next rung", logging.Fields{
					"nutrient": key,
					"rung":     step.name,
					"error":    err.Error(),
				})
				continue
			}
			if ref == nil {
				s.metrics.RecordLookup(step.name, "miss")
				continue
			}

			r := ref.Range(unit)
			if err := r.Validate(); err != nil {
				s.metrics.RecordLookup(step.name, "invalid")
				s.logger.Warn(ctx, "[RANGE_INVALID_ROW] Ignoring reference row with invalid range", logging.Fields{
					"nutrient": key,
					"rung":     step.name,
					"row_id":   ref.ID,
					"range":    r.String(),
				})
				continue
			}

			s.metrics.RecordLookup(step.name, "hit")
			s.logger.Debug(ctx, "[RANGE_RESOLVED] Ideal range found in reference store", logging.Fields{
				"nutrient": key,
				"rung":     step.name,
				"row_id":   ref.ID,
			})
			return models.ResolvedRange{Nutrient: key, IdealRange: r, Source: models.SourceRemote}
		}
	}

	def, ok := s.defaults.Lookup(key)
	if !ok {
		s.logger.Warn(ctx, "[RANGE_UNKNOWN_NUTRIENT] No default range for nutrient", logging.Fields{
			"nutrient": key,
			"known":    known,
		})
	}

	return models.ResolvedRange{Nutrient: key, IdealRange: def, Source: models.SourceFallback}
}

func (s *IdealRangeService) lookup(ctx context.Context, key models.NutrientKey, nc models.NormalizedContext) (*models.SoilReference, error) {
	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}

	refs, err := s.store.FindReferences(ctx, repository.ReferenceFilter{
		Nutrient:  string(key),
		Crop:      nc.Crop,
		Variety:   nc.Variety,
		State:     nc.State,
		City:      nc.City,
		Extractor: nc.Extractor,
		Stage:     nc.Stage,
		AgeMonths: nc.AgeMonths,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs[0], nil
}
