package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NutrientKey identifies a soil analysis parameter
type NutrientKey string

const (
	PH NutrientKey = "pH"
	N  NutrientKey = "N"
	P  NutrientKey = "P"
	K  NutrientKey = "K"
	Ca NutrientKey = "Ca"
	Mg NutrientKey = "Mg"
	MO NutrientKey = "MO" // organic matter
	S  NutrientKey = "S"
	B  NutrientKey = "B"
	Cu NutrientKey = "Cu"
	Fe NutrientKey = "Fe"
	Mn NutrientKey = "Mn"
	Zn NutrientKey = "Zn"
	Na NutrientKey = "Na"
	Al NutrientKey = "Al"
)

// AllNutrients lists every known key in display order
var AllNutrients = []NutrientKey{PH, N, P, K, Ca, Mg, MO, S, B, Cu, Fe, Mn, Zn, Na, Al}

var nutrientAliases = map[string]NutrientKey{
	"om":               MO,
	"organic-matter":   MO,
	"organic_matter":   MO,
	"materia-organica": MO,
}

// ParseNutrient canonicalizes a nutrient identifier case-insensitively
func ParseNutrient(s string) (NutrientKey, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", false
	}

	for _, n := range AllNutrients {
		if strings.ToLower(string(n)) == key {
			return n, true
		}
	}

	if n, ok := nutrientAliases[key]; ok {
		return n, true
	}

	return NutrientKey(strings.TrimSpace(s)), false
}

// NutrientReading is one measured value from a soil analysis
type NutrientReading struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// IdealRange is the agronomically adequate interval for a nutrient
type IdealRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit,omitempty"`
}

// Validate checks that Min <= Max and that both bounds are finite
func (r IdealRange) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return &ValidationError{
			Field:   "range",
			Value:   r.String(),
			Message: "range bounds must be finite numbers",
		}
	}

	if r.Min > r.Max {
		return &ValidationError{
			Field:   "range",
			Value:   r.String(),
			Message: "range min must not exceed max",
		}
	}

	return nil
}

// Width returns Max - Min
func (r IdealRange) Width() float64 {
	return r.Max - r.Min
}

// Mid returns the midpoint of the range
func (r IdealRange) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// Contains reports whether v lies within the inclusive bounds
func (r IdealRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// String renders the range as "min–max"
func (r IdealRange) String() string {
	return formatNumber(r.Min) + "–" + formatNumber(r.Max)
}

// Source records where a resolved range came from
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// ResolvedRange is an ideal range with its provenance attached
type ResolvedRange struct {
	Nutrient NutrientKey `json:"nutrient"`
	IdealRange
	Source Source `json:"source"`
}

// Context narrows ideal range lookups to a crop and its growing conditions
type Context struct {
	Crop      string   `json:"crop"`
	Variety   string   `json:"variety,omitempty"`
	State     string   `json:"state,omitempty"`
	City      string   `json:"city,omitempty"`
	Extractor string   `json:"extractor,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	AgeMonths *float64 `json:"age_months,omitempty"`
}

// NormalizedContext is a Context with trimmed, lowercased fields and nil for unspecified ones
type NormalizedContext struct {
	Crop      *string  `json:"crop"`
	Variety   *string  `json:"variety"`
	State     *string  `json:"state"`
	City      *string  `json:"city"`
	Extractor *string  `json:"extractor"`
	Stage     *string  `json:"stage"`
	AgeMonths *float64 `json:"age_months"`
}

func normalizeField(v string) *string {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return nil
	}
	return &s
}

// Normalize lowercases and trims the string fields; empty values become unspecified
func (c Context) Normalize() NormalizedContext {
	nc := NormalizedContext{
		Crop:      normalizeField(c.Crop),
		Variety:   normalizeField(c.Variety),
		State:     normalizeField(c.State),
		City:      normalizeField(c.City),
		Extractor: normalizeField(c.Extractor),
		Stage:     normalizeField(c.Stage),
	}

	if c.AgeMonths != nil && !math.IsNaN(*c.AgeMonths) && !math.IsInf(*c.AgeMonths, 0) {
		age := *c.AgeMonths
		nc.AgeMonths = &age
	}

	return nc
}

// CacheKey serializes the nutrient and normalized context into a stable key
func (nc NormalizedContext) CacheKey(nutrient NutrientKey) string {
	// Struct field order is fixed, so the encoding is stable
	data, err := json.Marshal(struct {
		Nutrient NutrientKey       `json:"nutrient"`
		Context  NormalizedContext `json:"context"`
	}{nutrient, nc})
	if err != nil {
		return string(nutrient)
	}
	return string(data)
}

// Range is a [min, max] pair as stored in profile maps
type Range [2]float64

// ToIdealRange converts the pair into an IdealRange with the given unit
func (r Range) ToIdealRange(unit string) IdealRange {
	return IdealRange{Min: r[0], Max: r[1], Unit: unit}
}

// RangeMap maps nutrients to ideal pairs; stored as a JSON column
type RangeMap map[NutrientKey]Range

// Scan implements sql.Scanner for JSON and JSONB columns
func (m *RangeMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = RangeMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported range map column type %T", src)
	}

	out := RangeMap{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to decode range map: %w", err)
		}
	}
	*m = out
	return nil
}

// Value implements driver.Valuer
func (m RangeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// SoilReference is a per-nutrient ideal range row in the reference store
type SoilReference struct {
	ID           int64     `json:"id" db:"id"`
	Nutrient     string    `json:"nutrient" db:"nutrient"`
	Crop         *string   `json:"crop,omitempty" db:"crop"`
	Variety      *string   `json:"variety,omitempty" db:"variety"`
	State        *string   `json:"state,omitempty" db:"state"`
	City         *string   `json:"city,omitempty" db:"city"`
	Extractor    *string   `json:"extractor,omitempty" db:"extractor"`
	Stage        *string   `json:"stage,omitempty" db:"stage"`
	AgeMinMonths *float64  `json:"age_min_months,omitempty" db:"age_min_months"`
	AgeMaxMonths *float64  `json:"age_max_months,omitempty" db:"age_max_months"`
	IdealMin     float64   `json:"ideal_min" db:"ideal_min"`
	IdealMax     float64   `json:"ideal_max" db:"ideal_max"`
	Unit         *string   `json:"unit,omitempty" db:"unit"`
	SourceNote   *string   `json:"source_note,omitempty" db:"source_note"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Range returns the row's ideal range, using fallbackUnit when the row has none
func (r *SoilReference) Range(fallbackUnit string) IdealRange {
	unit := fallbackUnit
	if r.Unit != nil && strings.TrimSpace(*r.Unit) != "" {
		unit = *r.Unit
	}
	return IdealRange{Min: r.IdealMin, Max: r.IdealMax, Unit: unit}
}

// SoilProfile is a crop-level set of ideal ranges for every nutrient
type SoilProfile struct {
	ID         int64     `json:"id,omitempty" db:"id" yaml:"-"`
	Crop       string    `json:"crop" db:"crop" yaml:"crop"`
	Variety    *string   `json:"variety,omitempty" db:"variety" yaml:"variety"`
	State      *string   `json:"state,omitempty" db:"state" yaml:"state"`
	City       *string   `json:"city,omitempty" db:"city" yaml:"city"`
	Extractor  *string   `json:"extractor,omitempty" db:"extractor" yaml:"extractor"`
	Stage      *string   `json:"stage,omitempty" db:"stage" yaml:"stage"`
	AgeMonths  *float64  `json:"age_months,omitempty" db:"age_months" yaml:"age_months"`
	Ideal      RangeMap  `json:"ideal" db:"ideal" yaml:"ideal"`
	SourceNote *string   `json:"source_note,omitempty" db:"source_note" yaml:"source_note"`
	Notes      *string   `json:"notes,omitempty" db:"notes" yaml:"notes"`
	UpdatedAt  time.Time `json:"updated_at,omitempty" db:"updated_at" yaml:"-"`
	Source     Source    `json:"source" db:"-" yaml:"-"`
}

// RangeString renders a pair as "min–max", or "—" when it is missing
func RangeString(r *Range) string {
	if r == nil {
		return "—"
	}
	return formatNumber(r[0]) + "–" + formatNumber(r[1])
}

// Summarize describes every range of a map in a short line, sorted by key
func Summarize(ideal RangeMap) string {
	keys := make([]string, 0, len(ideal))
	for k := range ideal {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		r := ideal[NutrientKey(k)]
		parts = append(parts, k+":"+RangeString(&r))
	}
	return strings.Join(parts, " | ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
