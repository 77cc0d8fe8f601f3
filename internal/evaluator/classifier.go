// Package evaluator classifies nutrient readings against ideal ranges and
// normalizes them for progress-bar and gauge displays. Everything here is pure.
package evaluator

import (
	"math"

	"soil-platform/internal/models"
)

// Status is the position of a reading relative to its ideal range
type Status string

const (
	StatusBelow Status = "BELOW"
	StatusIdeal Status = "IDEAL"
	StatusAbove Status = "ABOVE"
)

// ColorTag is the display color paired with a status
type ColorTag string

const (
	ColorRed    ColorTag = "red"
	ColorGreen  ColorTag = "green"
	ColorBlue   ColorTag = "blue"
	ColorViolet ColorTag = "violet"
)

// Mode selects how NormalizedPercent is computed
type Mode string

const (
	// ModeRange is percent-of-range, 0..100, for linear progress bars
	ModeRange Mode = "range"
	// ModeTarget is percent-of-target, 0..200 with 100 at the range midpoint, for gauges
	ModeTarget Mode = "target"
)

const (
	maxRangePercent  = 100
	maxTargetPercent = 200
)

// ParseMode maps a query value to a Mode, defaulting to ModeRange
func ParseMode(s string) Mode {
	if Mode(s) == ModeTarget {
		return ModeTarget
	}
	return ModeRange
}

// ClassificationResult is the outcome of classifying one reading
type ClassificationResult struct {
	Status            Status   `json:"status"`
	NormalizedPercent float64  `json:"normalized_percent"`
	Mode              Mode     `json:"mode"`
	Color             ColorTag `json:"color"`
}

// Options tunes ClassifyWith
type Options struct {
	Mode Mode
	// HighColor is used for ABOVE; blue when unset
	HighColor ColorTag
}

// Classify classifies value against r using percent-of-range and the blue high tier
func Classify(value float64, r models.IdealRange) ClassificationResult {
	return ClassifyWith(value, r, Options{Mode: ModeRange, HighColor: ColorBlue})
}

// ClassifyWith classifies value against r with the given normalization mode and palette
func ClassifyWith(value float64, r models.IdealRange, opts Options) ClassificationResult {
	status := StatusOf(value, r)

	mode := opts.Mode
	if mode != ModeTarget {
		mode = ModeRange
	}

	var pct float64
	if mode == ModeTarget {
		pct = PercentOfTarget(value, r)
	} else {
		pct = PercentOfRange(value, r)
	}

	return ClassificationResult{
		Status:            status,
		NormalizedPercent: pct,
		Mode:              mode,
		Color:             colorFor(status, opts.HighColor),
	}
}

// StatusOf returns BELOW, IDEAL or ABOVE with inclusive bounds. NaN is BELOW.
func StatusOf(value float64, r models.IdealRange) Status {
	switch {
	case math.IsNaN(value) || value < r.Min:
		return StatusBelow
	case value > r.Max:
		return StatusAbove
	default:
		return StatusIdeal
	}
}

func colorFor(status Status, high ColorTag) ColorTag {
	switch status {
	case StatusBelow:
		return ColorRed
	case StatusAbove:
		if high == ColorViolet {
			return ColorViolet
		}
		return ColorBlue
	default:
		return ColorGreen
	}
}

// PercentOfRange maps value linearly onto [min,max] as 0..100, clamped.
// A degenerate range (max == min) yields 0.
func PercentOfRange(value float64, r models.IdealRange) float64 {
	width := r.Max - r.Min
	if width == 0 || math.IsNaN(value) {
		return 0
	}
	return clamp((value-r.Min)/width*100, 0, maxRangePercent)
}

// PercentOfTarget expresses value as a percentage of the range midpoint, clamped to 0..200.
// A midpoint at or below zero yields 0.
func PercentOfTarget(value float64, r models.IdealRange) float64 {
	mid := (r.Min + r.Max) / 2
	if mid <= 0 || math.IsNaN(mid) || math.IsNaN(value) {
		return 0
	}
	return clamp(value/mid*100, 0, maxTargetPercent)
}

// clamp bounds v to [lo,hi]; an indeterminate NaN maps to lo
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
