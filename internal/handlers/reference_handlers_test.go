package handlers

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/services"
	"soil-platform/internal/standards"
	"soil-platform/migrations"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

func newStoreRouter(t *testing.T) *mux.Router {
	t.Helper()
	ctx := context.Background()

	logger := logging.NewStructuredLoggerWithWriter("handlers-test", "test", logging.ErrorLevel, io.Discard)
	collector := metrics.NewCollectorWithRegisterer("handlers_test", prometheus.NewRegistry())

	db, err := database.NewSQLiteDB(&database.Config{Path: database.MemoryPath}, logger, collector)
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Apply(ctx, db, migrations.Up); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	repo := repository.NewReferenceRepository(db, logger, collector)
	crop, unit := "abacate", "mg/dm³"
	err = repo.CreateReferencesBatch(ctx, []*models.SoilReference{
		{Nutrient: "P", Crop: &crop, IdealMin: 12, IdealMax: 30, Unit: &unit},
		{Nutrient: "K", Crop: &crop, IdealMin: 0.25, IdealMax: 0.45},
	})
	if err != nil {
		t.Fatalf("CreateReferencesBatch() error = %v", err)
	}

	table := standards.MustEmbedded()
	ranges := services.NewIdealRangeService(repo, table, logger, collector)
	handler := NewSoilHandler(
		ranges,
		services.NewProfileService(repo, table, logger, collector),
		services.NewEvaluationService(ranges, logger, collector),
		services.NewReferenceService(repo, logger, collector),
		repo,
		logger,
		collector,
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func TestGetReferences(t *testing.T) {
	router := newStoreRouter(t)

	rec := do(t, router, http.MethodGet, "/api/references?page=1&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var got struct {
		Data  []models.SoilReference `json:"data"`
		Page  int                    `json:"page"`
		Limit int                    `json:"limit"`
	}
	decode(t, rec, &got)
	if len(got.Data) != 1 || got.Page != 1 || got.Limit != 1 {
		t.Fatalf("response = %+v", got)
	}
	if got.Data[0].Nutrient != "K" {
		t.Errorf("first row = %+v, want K (ordered by nutrient)", got.Data[0])
	}
}

func TestGetReference(t *testing.T) {
	router := newStoreRouter(t)

	rec := do(t, router, http.MethodGet, "/api/references/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var ref models.SoilReference
	decode(t, rec, &ref)
	if ref.ID != 1 || ref.Nutrient != "P" {
		t.Errorf("reference = %+v", ref)
	}

	rec = do(t, router, http.MethodGet, "/api/references/999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing reference status = %d, want 404", rec.Code)
	}
}

func TestIdealRange_FromStore(t *testing.T) {
	router := newStoreRouter(t)

	rec := do(t, router, http.MethodGet, "/api/ideal-ranges/K?crop=abacate&extractor=mehlich-1", "")
	var got models.ResolvedRange
	decode(t, rec, &got)

	if got.Source != models.SourceRemote || got.Min != 0.25 || got.Unit != "cmolc/dm³" {
		t.Errorf("K = %+v, want remote 0.25–0.45 with the default unit", got)
	}
}
