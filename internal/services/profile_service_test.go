package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/standards"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

type fakeProfileStore struct {
	mu      sync.Mutex
	filters []repository.ProfileFilter
	answer  func(f repository.ProfileFilter) ([]*models.SoilProfile, error)
}

func (f *fakeProfileStore) FindProfiles(ctx context.Context, filter repository.ProfileFilter) ([]*models.SoilProfile, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	if f.answer == nil {
		return nil, nil
	}
	return f.answer(filter)
}

func newTestProfileService(t *testing.T, store ProfileFinder) *ProfileService {
	t.Helper()
	logger, collector := testDeps(t)
	return NewProfileService(store, standards.MustEmbedded(), logger, collector)
}

func TestGetProfile_FromStore(t *testing.T) {
	store := &fakeProfileStore{answer: func(f repository.ProfileFilter) ([]*models.SoilProfile, error) {
		if f.Variety != nil {
			return nil, nil
		}
		return []*models.SoilProfile{{
			ID:     4,
			Crop:   "abacate",
			Ideal:  models.RangeMap{models.P: {12, 30}},
			Source: models.SourceRemote,
		}}, nil
	}}
	svc := newTestProfileService(t, store)

	got := svc.GetProfile(context.Background(), fortuna)

	if got.Source != models.SourceRemote || got.ID != 4 {
		t.Fatalf("GetProfile() = %+v, want stored profile 4", got)
	}
	if len(store.filters) != 2 {
		t.Errorf("store called %d times, want 2", len(store.filters))
	}
	if models.Summarize(got.Ideal) != "P:12–30" {
		t.Errorf("Summarize() = %q", models.Summarize(got.Ideal))
	}
}

func TestGetProfile_FallbackLadder(t *testing.T) {
	tests := []struct {
		name    string
		store   ProfileFinder
		ctx     models.Context
		wantPH  models.Range
		wantVar string
	}{
		{
			name:    "exact offline profile",
			store:   &fakeProfileStore{},
			ctx:     models.Context{Crop: "Abacate", Variety: "Fortuna", State: "SP", Extractor: "Mehlich-1"},
			wantPH:  models.Range{5.5, 6.2},
			wantVar: "fortuna",
		},
		{
			name:   "same crop after store errors",
			store:  &fakeProfileStore{answer: func(repository.ProfileFilter) ([]*models.SoilProfile, error) { return nil, errors.New("down") }},
			ctx:    models.Context{Crop: "abacate", Variety: "hass"},
			wantPH: models.Range{5.5, 6.5},
		},
		{
			name:   "no store uses first profile",
			store:  nil,
			ctx:    models.Context{Crop: "trigo"},
			wantPH: models.Range{5.5, 6.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestProfileService(t, tt.store)
			got := svc.GetProfile(context.Background(), tt.ctx)

			if got.Source != models.SourceFallback {
				t.Errorf("Source = %v, want fallback", got.Source)
			}
			if got.Ideal[models.PH] != tt.wantPH {
				t.Errorf("pH = %v, want %v", got.Ideal[models.PH], tt.wantPH)
			}
			if deref(got.Variety) != tt.wantVar {
				t.Errorf("Variety = %q, want %q", deref(got.Variety), tt.wantVar)
			}
		})
	}
}

func TestGetProfile_StoreErrorsMoveToNextRung(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLoggerWithWriter("services-test", "test", logging.WarnLevel, &buf)
	collector := metrics.NewCollectorWithRegisterer("services_test", prometheus.NewRegistry())

	// The full-context rung fails; the next one answers
	recovering := &fakeProfileStore{answer: func(f repository.ProfileFilter) ([]*models.SoilProfile, error) {
		if f.State != nil {
			return nil, errors.New("timeout")
		}
		return []*models.SoilProfile{{ID: 9, Crop: "abacate", Source: models.SourceRemote}}, nil
	}}
	svc := NewProfileService(recovering, standards.MustEmbedded(), logger, collector)

	got := svc.GetProfile(context.Background(), models.Context{Crop: "abacate", Variety: "fortuna", State: "SP", Extractor: "mehlich-1"})
	if got.ID != 9 || got.Source != models.SourceRemote {
		t.Errorf("GetProfile() = %+v, want stored profile 9 from the second rung", got)
	}
	if len(recovering.filters) != 2 {
		t.Errorf("store called %d times, want 2", len(recovering.filters))
	}

	buf.Reset()
	failing := &fakeProfileStore{answer: func(repository.ProfileFilter) ([]*models.SoilProfile, error) {
		return nil, errors.New("connection refused")
	}}
	svc = NewProfileService(failing, standards.MustEmbedded(), logger, collector)

	got = svc.GetProfile(context.Background(), models.Context{Crop: "abacate", Variety: "fortuna", State: "SP", Extractor: "mehlich-1"})
	if got.Source != models.SourceFallback || got.Ideal[models.PH] != (models.Range{5.5, 6.2}) {
		t.Errorf("GetProfile() = %+v, want the exact offline profile", got)
	}
	if len(failing.filters) != 4 {
		t.Errorf("store called %d times, want every rung tried", len(failing.filters))
	}
	if n := strings.Count(buf.String(), "[PROFILE_LOOKUP_ERROR]"); n != 4 {
		t.Errorf("logged %d lookup errors, want 4:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"profile_resolver"`) {
		t.Errorf("entries missing component field:\n%s", buf.String())
	}
}
