package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"soil-platform/internal/evaluator"
	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/services"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SoilHandler handles soil analysis API endpoints
type SoilHandler struct {
	rangeService      *services.IdealRangeService
	profileService    *services.ProfileService
	evaluationService *services.EvaluationService
	referenceService  *services.ReferenceService
	health            HealthChecker
	logger            *logging.StructuredLogger
	metrics           *metrics.Collector
}

// NewSoilHandler creates a new soil handler. referenceService and health may be nil
// when no reference store is configured.
func NewSoilHandler(
	rangeService *services.IdealRangeService,
	profileService *services.ProfileService,
	evaluationService *services.EvaluationService,
	referenceService *services.ReferenceService,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *SoilHandler {
	return &SoilHandler{
		rangeService:      rangeService,
		profileService:    profileService,
		evaluationService: evaluationService,
		referenceService:  referenceService,
		health:            health,
		logger:            logger,
		metrics:           metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// EvaluationRequest is the body of POST /api/evaluations
type EvaluationRequest struct {
	Context  models.Context           `json:"context"`
	Readings []models.NutrientReading `json:"readings"`
}

// RangesResponse is the body returned by the batch ideal range endpoint
type RangesResponse struct {
	Context models.Context                  `json:"context"`
	Ranges  map[string]models.ResolvedRange `json:"ranges"`
}

// ProfileResponse wraps a resolved profile with its one-line summary
type ProfileResponse struct {
	Profile models.SoilProfile `json:"profile"`
	Summary string             `json:"summary"`
}

// observe records the request duration for an endpoint; call the result with defer
func (h *SoilHandler) observe(endpoint string) func() {
	startTime := time.Now()
	return func() {
		h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}
}

// parseContext reads the crop context from query parameters
func parseContext(r *http.Request) (models.Context, error) {
	q := r.URL.Query()
	c := models.Context{
		Crop:      q.Get("crop"),
		Variety:   q.Get("variety"),
		State:     q.Get("state"),
		City:      q.Get("city"),
		Extractor: q.Get("extractor"),
		Stage:     q.Get("stage"),
	}

	if ageStr := q.Get("age_months"); ageStr != "" {
		age, err := strconv.ParseFloat(ageStr, 64)
		if err != nil || age < 0 {
			return c, errors.New("invalid age_months, expected a non-negative number")
		}
		c.AgeMonths = &age
	}

	return c, nil
}

// GetIdealRange handles GET /api/ideal-ranges/{nutrient}
func (h *SoilHandler) GetIdealRange(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/ideal-ranges/{nutrient}")()

	nutrient := mux.Vars(r)["nutrient"]

	c, err := parseContext(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	resolved := h.rangeService.Resolve(r.Context(), nutrient, c)

	h.metrics.RecordAPIRequest("/api/ideal-ranges/{nutrient}", "GET", "200")
	h.sendJSON(w, resolved, http.StatusOK)
}

// GetIdealRanges handles GET /api/ideal-ranges?nutrients=pH,P,K
func (h *SoilHandler) GetIdealRanges(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/ideal-ranges")()

	c, err := parseContext(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	var nutrients []string
	for _, n := range strings.Split(r.URL.Query().Get("nutrients"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			nutrients = append(nutrients, n)
		}
	}
	if len(nutrients) == 0 {
		h.sendError(w, r, "nutrients parameter is required", http.StatusBadRequest)
		return
	}

	response := RangesResponse{
		Context: c,
		Ranges:  h.rangeService.ResolveMany(r.Context(), nutrients, c),
	}

	h.metrics.RecordAPIRequest("/api/ideal-ranges", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetProfile handles GET /api/profiles
func (h *SoilHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/profiles")()

	c, err := parseContext(r)
	if err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	profile := h.profileService.GetProfile(r.Context(), c)

	h.metrics.RecordAPIRequest("/api/profiles", "GET", "200")
	h.sendJSON(w, ProfileResponse{Profile: profile, Summary: models.Summarize(profile.Ideal)}, http.StatusOK)
}

// Classify handles GET /api/classify?value=&min=&max=&mode=
func (h *SoilHandler) Classify(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/classify")()

	q := r.URL.Query()
	values := make(map[string]float64, 3)
	for _, name := range []string{"value", "min", "max"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			h.sendError(w, r, "invalid "+name+", expected a finite number", http.StatusBadRequest)
			return
		}
		values[name] = v
	}

	ideal := models.IdealRange{Min: values["min"], Max: values["max"], Unit: q.Get("unit")}
	if err := ideal.Validate(); err != nil {
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	opts := evaluator.Options{Mode: evaluator.ParseMode(q.Get("mode")), HighColor: evaluator.ColorBlue}
	if q.Get("high_color") == string(evaluator.ColorViolet) {
		opts.HighColor = evaluator.ColorViolet
	}

	result := evaluator.ClassifyWith(values["value"], ideal, opts)

	h.metrics.RecordAPIRequest("/api/classify", "GET", "200")
	h.sendJSON(w, result, http.StatusOK)
}

// CreateEvaluation handles POST /api/evaluations
func (h *SoilHandler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/evaluations")()

	var req EvaluationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	eval, err := h.evaluationService.Evaluate(ctx, req.Context, req.Readings)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			h.metrics.RecordAPIError("validation_error", "/api/evaluations")
			h.sendError(w, r, ve.Field+": "+ve.Message, http.StatusBadRequest)
			return
		}

		h.logger.Error(ctx, "[API_EVALUATION_ERROR] Failed to evaluate soil analysis", logging.Fields{
			"crop": req.Context.Crop,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/evaluations")
		h.sendError(w, r, "failed to evaluate soil analysis", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/evaluations", "POST", "200")
	h.sendJSON(w, eval, http.StatusOK)
}

// GetReferences handles GET /api/references
func (h *SoilHandler) GetReferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/references")()

	pageStr := r.URL.Query().Get("page")
	limitStr := r.URL.Query().Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	offset := (page - 1) * limit

	refs, err := h.referenceService.GetReferences(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_REFERENCES_ERROR] Failed to list references", logging.Fields{
			"page":  page,
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/references")
		h.sendError(w, r, "failed to retrieve references", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:  refs,
		Page:  page,
		Limit: limit,
	}

	h.metrics.RecordAPIRequest("/api/references", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetReference handles GET /api/references/{id}
func (h *SoilHandler) GetReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/references/{id}")()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.sendError(w, r, "invalid id, expected an integer", http.StatusBadRequest)
		return
	}

	ref, err := h.referenceService.GetReference(ctx, id)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			h.sendError(w, r, nf.Error(), http.StatusNotFound)
			return
		}

		h.logger.Error(ctx, "[API_GET_REFERENCE_ERROR] Failed to get reference", logging.Fields{
			"id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/references/{id}")
		h.sendError(w, r, "failed to retrieve reference", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/references/{id}", "GET", "200")
	h.sendJSON(w, ref, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SoilHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"store":     "none",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Ranges still resolve from defaults while the store is down
	if h.health != nil {
		status["store"] = "ok"
		if err := h.health.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, status, http.StatusOK)
}

// sendJSON sends a JSON response
func (h *SoilHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SoilHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all soil API routes
func (h *SoilHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/evaluations", h.CreateEvaluation).Methods("POST")
	router.HandleFunc("/api/ideal-ranges", h.GetIdealRanges).Methods("GET")
	router.HandleFunc("/api/ideal-ranges/{nutrient}", h.GetIdealRange).Methods("GET")
	router.HandleFunc("/api/profiles", h.GetProfile).Methods("GET")
	router.HandleFunc("/api/classify", h.Classify).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	if h.referenceService != nil {
		router.HandleFunc("/api/references", h.GetReferences).Methods("GET")
		router.HandleFunc("/api/references/{id:[0-9]+}", h.GetReference).Methods("GET")
	}
}
