package evaluator

import (
	"fmt"
	"math"

	"soil-platform/internal/models"
)

// Scale is the full display axis a nutrient is drawn on
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PHScale is the 0..14 pH axis
var PHScale = Scale{Min: 0, Max: 14}

// DefaultScale is used for ranges that give no hint of their magnitude
var DefaultScale = Scale{Min: 0, Max: 100}

// ScaleFor returns the display axis for a nutrient: pH on its own axis, others from zero
// to twice the ideal maximum.
func ScaleFor(nutrient models.NutrientKey, r models.IdealRange) Scale {
	if nutrient == models.PH {
		return PHScale
	}
	if r.Max <= 0 {
		return DefaultScale
	}
	return Scale{Min: 0, Max: 2 * r.Max}
}

const (
	growthFloor = 0.1
	growthSpan  = 0.4
	minDistance = 0.0001
)

// DistanceToIdeal returns 0 inside r, otherwise the distance to the nearest bound
// relative to half the scale width, clamped to [0,1].
func DistanceToIdeal(value float64, r models.IdealRange, scale Scale) float64 {
	if math.IsNaN(value) {
		return 1
	}
	if r.Contains(value) {
		return 0
	}

	d := value - r.Max
	if value < r.Min {
		d = r.Min - value
	}

	half := (scale.Max - scale.Min) / 2
	if half <= 0 {
		return 1
	}
	return clamp(d/half, 0, 1)
}

// GrowthFactor maps closeness to r onto 0.1..0.5 for the pH plant indicator.
// The distance is measured against the largest gap between r and the scale edges.
func GrowthFactor(value float64, r models.IdealRange, scale Scale) float64 {
	if math.IsNaN(value) {
		return growthFloor
	}

	var delta float64
	if !r.Contains(value) {
		delta = math.Min(math.Abs(value-r.Min), math.Abs(value-r.Max))
	}

	maxDist := math.Max(math.Max(r.Min-scale.Min, scale.Max-r.Max), minDistance)
	closeness := clamp(1-delta/maxDist, 0, 1)
	return growthFloor + closeness*growthSpan
}

// PHLabel names a pH status
func PHLabel(status Status) string {
	switch status {
	case StatusBelow:
		return "Acidic"
	case StatusAbove:
		return "Alkaline"
	default:
		return "Ideal"
	}
}

// Advice returns a short management recommendation for a nutrient status
func Advice(nutrient models.NutrientKey, status Status) string {
	if nutrient == models.PH {
		switch status {
		case StatusBelow:
			return "pH acidic, consider liming."
		case StatusAbove:
			return "pH alkaline, suspend liming and review acidifying sources."
		default:
			return "pH adequate, keep current management."
		}
	}

	switch status {
	case StatusBelow:
		return fmt.Sprintf("%s below ideal, consider corrective fertilization.", nutrient)
	case StatusAbove:
		return fmt.Sprintf("%s above ideal, reduce dose or adjust source and application.", nutrient)
	default:
		return fmt.Sprintf("%s adequate, keep current management.", nutrient)
	}
}
