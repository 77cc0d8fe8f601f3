package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/standards"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// fakeStore answers lookups through a callback and records every filter it sees
type fakeStore struct {
	mu      sync.Mutex
	filters []repository.ReferenceFilter
	delay   time.Duration
	answer  func(f repository.ReferenceFilter) ([]*models.SoilReference, error)
}

func (f *fakeStore) FindReferences(ctx context.Context, filter repository.ReferenceFilter) ([]*models.SoilReference, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.answer == nil {
		return nil, nil
	}
	return f.answer(filter)
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters)
}

func testDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector) {
	t.Helper()
	logger := logging.NewStructuredLoggerWithWriter("services-test", "test", logging.ErrorLevel, io.Discard)
	collector := metrics.NewCollectorWithRegisterer("services_test", prometheus.NewRegistry())
	return logger, collector
}

func newTestResolver(t *testing.T, store ReferenceFinder) (*IdealRangeService, *metrics.Collector) {
	t.Helper()
	logger, collector := testDeps(t)
	return NewIdealRangeService(store, standards.MustEmbedded(), logger, collector), collector
}

func str(s string) *string { return &s }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var fortuna = models.Context{Crop: "abacate", Variety: "fortuna", Extractor: "mehlich-1"}

func TestResolve_FallsBackToDefaults(t *testing.T) {
	store := &fakeStore{}
	svc, collector := newTestResolver(t, store)

	got := svc.Resolve(context.Background(), "P", fortuna)

	if got.Source != models.SourceFallback {
		t.Errorf("Source = %v, want fallback", got.Source)
	}
	if got.Min != 10 || got.Max != 30 || got.Unit != "mg/dm³" {
		t.Errorf("range = %+v, want 10–30 mg/dm³", got.IdealRange)
	}
	if got.Nutrient != models.P {
		t.Errorf("Nutrient = %v, want P", got.Nutrient)
	}
	if n := testutil.ToFloat64(collector.RangeResolutions.WithLabelValues("fallback")); n != 1 {
		t.Errorf("fallback resolutions = %v, want 1", n)
	}
}

func TestResolve_RemoteRowInheritsDefaultUnit(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		return []*models.SoilReference{{ID: 7, Nutrient: f.Nutrient, IdealMin: 12, IdealMax: 28}}, nil
	}}
	svc, _ := newTestResolver(t, store)

	got := svc.Resolve(context.Background(), "p", fortuna)

	if got.Source != models.SourceRemote {
		t.Fatalf("Source = %v, want remote", got.Source)
	}
	if got.Min != 12 || got.Max != 28 || got.Unit != "mg/dm³" {
		t.Errorf("range = %+v, want 12–28 mg/dm³", got.IdealRange)
	}
	if store.filters[0].Nutrient != "P" {
		t.Errorf("store queried nutrient %q, want canonical P", store.filters[0].Nutrient)
	}
}

func TestResolve_LadderOrder(t *testing.T) {
	age := 18.0
	c := models.Context{
		Crop:      " Abacate ",
		Variety:   "Fortuna",
		State:     "SP",
		Extractor: "Mehlich-1",
		AgeMonths: &age,
	}

	// Only a crop + extractor row exists
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		if f.Variety == nil && f.Extractor != nil {
			return []*models.SoilReference{{ID: 3, IdealMin: 1, IdealMax: 2, Unit: str("x")}}, nil
		}
		return nil, nil
	}}
	svc, collector := newTestResolver(t, store)

	got := svc.Resolve(context.Background(), "K", c)
	if got.Source != models.SourceRemote || got.Min != 1 || got.Max != 2 || got.Unit != "x" {
		t.Fatalf("Resolve() = %+v, want remote 1–2 x", got)
	}

	if store.calls() != 3 {
		t.Fatalf("store called %d times, want 3 (stop at crop_extractor)", store.calls())
	}

	full := store.filters[0]
	if deref(full.Crop) != "abacate" || deref(full.State) != "sp" || full.AgeMonths == nil || *full.AgeMonths != 18 {
		t.Errorf("full rung filter = %+v, want normalized context with age", full)
	}

	second := store.filters[1]
	if deref(second.Variety) != "fortuna" || second.State != nil || second.AgeMonths != nil {
		t.Errorf("crop_variety_extractor filter = %+v", second)
	}

	for _, f := range store.filters {
		if f.Nutrient != "K" || f.Limit != 1 {
			t.Errorf("filter %+v must always carry nutrient and limit 1", f)
		}
	}

	if n := testutil.ToFloat64(collector.RangeLookupsTotal.WithLabelValues("crop_extractor", "hit")); n != 1 {
		t.Errorf("crop_extractor hits = %v, want 1", n)
	}
}

func TestResolve_SkipsDuplicateRungs(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestResolver(t, store)

	svc.Resolve(context.Background(), "Ca", models.Context{Crop: "soja"})

	if store.calls() != 1 {
		t.Errorf("store called %d times for a crop-only context, want 1", store.calls())
	}
}

func TestResolve_CachesResults(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		return []*models.SoilReference{{IdealMin: 3, IdealMax: 6}}, nil
	}}
	svc, collector := newTestResolver(t, store)
	ctx := context.Background()

	first := svc.Resolve(ctx, "Ca", models.Context{Crop: "Soja"})
	second := svc.Resolve(ctx, "ca", models.Context{Crop: "  soja"})

	if first != second {
		t.Errorf("second resolution %+v differs from first %+v", second, first)
	}
	if store.calls() != 1 {
		t.Errorf("store called %d times, want 1", store.calls())
	}
	if n := testutil.ToFloat64(collector.RangeCacheHits); n != 1 {
		t.Errorf("cache hits = %v, want 1", n)
	}

	// Clean fallbacks are cached too
	svc.Resolve(ctx, "Mg", models.Context{Crop: "soja"})
	svc.Resolve(ctx, "Mg", models.Context{Crop: "soja"})
	if store.calls() != 2 {
		t.Errorf("store called %d times after repeated fallback, want 2", store.calls())
	}
}

func TestResolve_LookupErrorsDegradeToCachedFallback(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		return nil, errors.New("connection refused")
	}}
	svc, collector := newTestResolver(t, store)
	ctx := context.Background()

	got := svc.Resolve(ctx, "pH", fortuna)
	if got.Source != models.SourceFallback || got.Min != 5.5 || got.Max != 6.5 {
		t.Fatalf("Resolve() = %+v, want pH default fallback", got)
	}

	callsAfterFirst := store.calls()
	if callsAfterFirst != 3 {
		t.Errorf("store called %d times, want every distinct rung tried", callsAfterFirst)
	}
	if n := testutil.ToFloat64(collector.RangeLookupErrors.WithLabelValues("pH")); n != 3 {
		t.Errorf("lookup errors = %v, want 3", n)
	}

	again := svc.Resolve(ctx, "pH", fortuna)
	if again != got {
		t.Errorf("second Resolve() = %+v, want %+v", again, got)
	}
	if store.calls() != callsAfterFirst {
		t.Errorf("store called %d times after the second resolution, want %d (served from cache)", store.calls(), callsAfterFirst)
	}
}

func TestResolve_RejectsInvertedRows(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		if f.Variety != nil {
			return []*models.SoilReference{{ID: 1, IdealMin: 40, IdealMax: 20}}, nil
		}
		return []*models.SoilReference{{ID: 2, IdealMin: 20, IdealMax: 40}}, nil
	}}
	svc, _ := newTestResolver(t, store)

	got := svc.Resolve(context.Background(), "P", fortuna)
	if got.Source != models.SourceRemote || got.Min != 20 || got.Max != 40 {
		t.Errorf("Resolve() = %+v, want the valid crop_extractor row", got)
	}
}

func TestResolve_UnknownNutrient(t *testing.T) {
	svc, _ := newTestResolver(t, &fakeStore{})

	got := svc.Resolve(context.Background(), "Xx", fortuna)
	if got.Source != models.SourceFallback || got.Min != 0 || got.Max != 0 || got.Unit != "" {
		t.Errorf("Resolve(unknown) = %+v, want zero fallback", got)
	}
}

func TestResolve_WithoutStore(t *testing.T) {
	svc, _ := newTestResolver(t, nil)

	got := svc.Resolve(context.Background(), "K", fortuna)
	if got.Source != models.SourceFallback || got.Min != 0.2 || got.Max != 0.4 {
		t.Errorf("Resolve() = %+v, want K default", got)
	}
}

func TestResolve_ConcurrentCallsShareOneLookup(t *testing.T) {
	store := &fakeStore{
		delay: 20 * time.Millisecond,
		answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
			return []*models.SoilReference{{IdealMin: 1, IdealMax: 3}}, nil
		},
	}
	svc, collector := newTestResolver(t, store)

	var wg sync.WaitGroup
	results := make([]models.ResolvedRange, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Resolve(context.Background(), "Zn", models.Context{Crop: "milho"})
		}(i)
	}
	wg.Wait()

	if store.calls() != 1 {
		t.Errorf("store called %d times, want 1", store.calls())
	}
	hits := testutil.ToFloat64(collector.RangeCacheHits)
	misses := testutil.ToFloat64(collector.RangeCacheMisses)
	if misses != 1 {
		t.Errorf("cache misses = %v, want 1 for one shared lookup", misses)
	}
	if hits > float64(len(results)-1) {
		t.Errorf("cache hits = %v, more than the %d callers that could hit", hits, len(results)-1)
	}
	for i, r := range results {
		if r != results[0] {
			t.Errorf("result %d = %+v, want %+v", i, r, results[0])
		}
	}
}

func TestResolveMany(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		if f.Nutrient == "P" {
			return []*models.SoilReference{{IdealMin: 15, IdealMax: 25}}, nil
		}
		return nil, nil
	}}
	svc, _ := newTestResolver(t, store)

	got := svc.ResolveMany(context.Background(), []string{"P", "K", "pH"}, models.Context{Crop: "abacate"})

	if len(got) != 3 {
		t.Fatalf("ResolveMany() returned %d entries, want 3", len(got))
	}
	if got["P"].Source != models.SourceRemote || got["P"].Min != 15 {
		t.Errorf("P = %+v, want remote 15–25", got["P"])
	}
	if got["K"].Source != models.SourceFallback || got["K"].Max != 0.4 {
		t.Errorf("K = %+v, want fallback default", got["K"])
	}
	if got["pH"].Unit != "pH" {
		t.Errorf("pH unit = %q, want pH", got["pH"].Unit)
	}
}

func TestResolve_LookupTimeout(t *testing.T) {
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		return nil, context.DeadlineExceeded
	}}
	logger, collector := testDeps(t)
	svc := NewIdealRangeService(store, standards.MustEmbedded(), logger, collector, WithLookupTimeout(time.Millisecond), WithConcurrency(2))

	got := svc.Resolve(context.Background(), "B", models.Context{Crop: "café"})
	if got.Source != models.SourceFallback || got.Min != 0.2 {
		t.Errorf("Resolve() = %+v, want B default after timeout", got)
	}
}

func TestResolve_LogsCarryComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLoggerWithWriter("services-test", "test", logging.WarnLevel, &buf)
	collector := metrics.NewCollectorWithRegisterer("services_test", prometheus.NewRegistry())
	store := &fakeStore{answer: func(f repository.ReferenceFilter) ([]*models.SoilReference, error) {
		return nil, errors.New("connection refused")
	}}
	svc := NewIdealRangeService(store, standards.MustEmbedded(), logger, collector)

	svc.Resolve(context.Background(), "K", models.Context{Crop: "soja"})

	out := buf.String()
	if !strings.Contains(out, "[RANGE_LOOKUP_ERROR]") || !strings.Contains(out, `"component":"ideal_range_resolver"`) {
		t.Errorf("lookup error entry missing component field:\n%s", out)
	}
}
