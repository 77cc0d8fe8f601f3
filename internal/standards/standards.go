// Package standards holds the static table of default ideal ranges and the
// offline crop profiles used when the reference store has nothing to offer.
package standards

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"soil-platform/internal/models"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

type document struct {
	Ranges   map[string]models.IdealRange `yaml:"ranges"`
	Profiles []models.SoilProfile         `yaml:"profiles"`
}

// Table is an immutable set of default ranges and fallback profiles
type Table struct {
	ranges   map[models.NutrientKey]models.IdealRange
	profiles []models.SoilProfile
}

// Embedded returns the table compiled into the binary
func Embedded() (*Table, error) {
	return Parse(embeddedDefaults)
}

// MustEmbedded is Embedded for package-level initialization and tests
func MustEmbedded() *Table {
	t, err := Embedded()
	if err != nil {
		panic(fmt.Sprintf("embedded defaults are invalid: %v", err))
	}
	return t
}

// Load returns the embedded table, overlaid with the YAML file at path when set.
// Ranges in the file replace embedded ones per nutrient; profiles in the file come
// before the embedded ones.
func Load(path string) (*Table, error) {
	base, err := Embedded()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}

	overlay, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}

	for k, r := range overlay.ranges {
		base.ranges[k] = r
	}
	base.profiles = append(overlay.profiles, base.profiles...)

	return base, nil
}

// Parse decodes and validates a defaults document
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}

	t := &Table{
		ranges:   make(map[models.NutrientKey]models.IdealRange, len(doc.Ranges)),
		profiles: make([]models.SoilProfile, 0, len(doc.Profiles)),
	}

	for raw, r := range doc.Ranges {
		key, ok := models.ParseNutrient(raw)
		if !ok {
			return nil, &models.ValidationError{Field: "nutrient", Value: raw, Message: "unknown nutrient " + raw}
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("default range for %s: %w", key, err)
		}
		t.ranges[key] = r
	}

	for i, p := range doc.Profiles {
		if strings.TrimSpace(p.Crop) == "" {
			return nil, &models.ValidationError{Field: "crop", Message: fmt.Sprintf("profile %d has no crop", i)}
		}
		for key, r := range p.Ideal {
			if err := r.ToIdealRange("").Validate(); err != nil {
				return nil, fmt.Errorf("profile %d range for %s: %w", i, key, err)
			}
		}
		t.profiles = append(t.profiles, normalizeProfile(p))
	}

	return t, nil
}

// Lookup returns the default range for a nutrient
func (t *Table) Lookup(key models.NutrientKey) (models.IdealRange, bool) {
	r, ok := t.ranges[key]
	return r, ok
}

// Unit returns the default unit for a nutrient, or "" when unknown
func (t *Table) Unit(key models.NutrientKey) string {
	return t.ranges[key].Unit
}

// Nutrients lists the nutrients covered by the table in display order
func (t *Table) Nutrients() []models.NutrientKey {
	out := make([]models.NutrientKey, 0, len(t.ranges))
	for _, k := range models.AllNutrients {
		if _, ok := t.ranges[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Profiles returns copies of the offline profiles in lookup order
func (t *Table) Profiles() []models.SoilProfile {
	out := make([]models.SoilProfile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, copyProfile(p))
	}
	return out
}

// FallbackProfile picks the closest offline profile: exact crop, variety, state and
// extractor first, then any profile of the same crop, then the first profile.
func (t *Table) FallbackProfile(nc models.NormalizedContext) (models.SoilProfile, bool) {
	if len(t.profiles) == 0 {
		return models.SoilProfile{Ideal: models.RangeMap{}, Source: models.SourceFallback}, false
	}

	crop := ""
	if nc.Crop != nil {
		crop = *nc.Crop
	}

	for _, p := range t.profiles {
		if p.Crop == crop &&
			samePtr(p.Variety, nc.Variety) &&
			samePtr(p.State, nc.State) &&
			samePtr(p.Extractor, nc.Extractor) {
			return copyProfile(p), true
		}
	}

	for _, p := range t.profiles {
		if p.Crop == crop {
			return copyProfile(p), true
		}
	}

	return copyProfile(t.profiles[0]), true
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	if v == "" {
		return nil
	}
	return &v
}

func normalizeProfile(p models.SoilProfile) models.SoilProfile {
	p.Crop = strings.ToLower(strings.TrimSpace(p.Crop))
	p.Variety = lowerPtr(p.Variety)
	p.State = lowerPtr(p.State)
	p.City = lowerPtr(p.City)
	p.Extractor = lowerPtr(p.Extractor)
	p.Stage = lowerPtr(p.Stage)

	ideal := make(models.RangeMap, len(p.Ideal))
	for raw, r := range p.Ideal {
		key, _ := models.ParseNutrient(string(raw))
		ideal[key] = r
	}
	p.Ideal = ideal
	return p
}

func copyProfile(p models.SoilProfile) models.SoilProfile {
	ideal := make(models.RangeMap, len(p.Ideal))
	for k, r := range p.Ideal {
		ideal[k] = r
	}
	p.Ideal = ideal
	p.Source = models.SourceFallback
	return p
}
