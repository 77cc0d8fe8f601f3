package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"soil-platform/internal/evaluator"
	"soil-platform/internal/models"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ReadingResult is one classified reading of an evaluation
type ReadingResult struct {
	Nutrient      models.NutrientKey   `json:"nutrient"`
	Value         float64              `json:"value"`
	Range         models.ResolvedRange `json:"range"`
	Status        evaluator.Status     `json:"status"`
	Percent       float64              `json:"percent"`
	TargetPercent float64              `json:"target_percent"`
	Color         evaluator.ColorTag   `json:"color"`
	Label         string               `json:"label,omitempty"`
	Advice        string               `json:"advice"`
	Scale         evaluator.Scale      `json:"scale"`
	Distance      float64              `json:"distance"`
	Growth        float64              `json:"growth"`
}

// Evaluation is the classified soil analysis for a context
type Evaluation struct {
	Context     models.Context           `json:"context"`
	Results     []ReadingResult          `json:"results"`
	Summary     map[evaluator.Status]int `json:"summary"`
	EvaluatedAt time.Time                `json:"evaluated_at"`
}

// EvaluationService classifies every reading of a soil analysis
type EvaluationService struct {
	ranges  *IdealRangeService
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewEvaluationService creates a new evaluation service
func NewEvaluationService(ranges *IdealRangeService, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *EvaluationService {
	return &EvaluationService{
		ranges:  ranges,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Evaluate validates the readings, resolves their ranges in parallel and classifies them.
// Results keep the order of the readings.
func (s *EvaluationService) Evaluate(ctx context.Context, c models.Context, readings []models.NutrientReading) (*Evaluation, error) {
	timer := s.metrics.NewTimer(s.metrics.EvaluationDuration)

	keys, err := validateReadings(readings)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	resolved := s.ranges.ResolveMany(ctx, names, c)

	eval := &Evaluation{
		Context: c,
		Results: make([]ReadingResult, 0, len(readings)),
		Summary: map[evaluator.Status]int{
			evaluator.StatusBelow: 0,
			evaluator.StatusIdeal: 0,
			evaluator.StatusAbove: 0,
		},
		EvaluatedAt: time.Now().UTC(),
	}

	for i, reading := range readings {
		key := keys[i]
		rr := resolved[string(key)]
		eval.Results = append(eval.Results, classifyReading(key, reading.Value, rr))
	}

	for _, res := range eval.Results {
		eval.Summary[res.Status]++
		s.metrics.RecordEvaluation(string(res.Status))
	}

	duration := timer.ObserveDuration()
	s.logger.Info(ctx, "[EVALUATION_COMPLETE] Soil analysis evaluated", logging.Fields{
		"crop":        c.Crop,
		"readings":    len(readings),
		"below":       eval.Summary[evaluator.StatusBelow],
		"ideal":       eval.Summary[evaluator.StatusIdeal],
		"above":       eval.Summary[evaluator.StatusAbove],
		"duration_ms": duration.Milliseconds(),
	})

	return eval, nil
}

func classifyReading(key models.NutrientKey, value float64, rr models.ResolvedRange) ReadingResult {
	high := evaluator.ColorViolet
	if key == models.PH {
		high = evaluator.ColorBlue
	}

	byRange := evaluator.ClassifyWith(value, rr.IdealRange, evaluator.Options{Mode: evaluator.ModeRange, HighColor: high})
	scale := evaluator.ScaleFor(key, rr.IdealRange)

	res := ReadingResult{
		Nutrient:      key,
		Value:         value,
		Range:         rr,
		Status:        byRange.Status,
		Percent:       byRange.NormalizedPercent,
		TargetPercent: evaluator.PercentOfTarget(value, rr.IdealRange),
		Color:         byRange.Color,
		Advice:        evaluator.Advice(key, byRange.Status),
		Scale:         scale,
		Distance:      evaluator.DistanceToIdeal(value, rr.IdealRange, scale),
		Growth:        evaluator.GrowthFactor(value, rr.IdealRange, scale),
	}
	if key == models.PH {
		res.Label = evaluator.PHLabel(byRange.Status)
	}
	return res
}

// validateReadings canonicalizes the reading keys and rejects empty, non-finite or repeated ones
func validateReadings(readings []models.NutrientReading) ([]models.NutrientKey, error) {
	if len(readings) == 0 {
		return nil, &models.ValidationError{
			Field:   "readings",
			Message: "at least one reading is required",
		}
	}

	keys := make([]models.NutrientKey, len(readings))
	seen := make(map[models.NutrientKey]bool, len(readings))

	for i, r := range readings {
		if strings.TrimSpace(r.Key) == "" {
			return nil, &models.ValidationError{
				Field:   fmt.Sprintf("readings[%d].key", i),
				Message: "nutrient key is required",
			}
		}

		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			return nil, &models.ValidationError{
				Field:   fmt.Sprintf("readings[%d].value", i),
				Value:   r.Key,
				Message: "reading value must be a finite number",
			}
		}

		key, _ := models.ParseNutrient(r.Key)
		if seen[key] {
			return nil, &models.ValidationError{
				Field:   fmt.Sprintf("readings[%d].key", i),
				Value:   r.Key,
				Message: "duplicate reading for " + string(key),
			}
		}
		seen[key] = true
		keys[i] = key
	}

	return keys, nil
}
