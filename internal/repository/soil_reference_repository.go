package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"soil-platform/internal/models"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// ReferenceRepository provides data access for soil reference data
type ReferenceRepository interface {
	// Per-nutrient ideal ranges
	FindReferences(ctx context.Context, filter ReferenceFilter) ([]*models.SoilReference, error)
	GetReference(ctx context.Context, id int64) (*models.SoilReference, error)
	ListReferences(ctx context.Context, limit, offset int) ([]*models.SoilReference, error)
	CreateReference(ctx context.Context, ref *models.SoilReference) error
	CreateReferencesBatch(ctx context.Context, refs []*models.SoilReference) error

	// Crop profiles
	FindProfiles(ctx context.Context, filter ProfileFilter) ([]*models.SoilProfile, error)
	CreateProfile(ctx context.Context, profile *models.SoilProfile) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// ReferenceFilter narrows a reference lookup; nil fields are not filtered on
type ReferenceFilter struct {
	Nutrient  string
	Crop      *string
	Variety   *string
	State     *string
	City      *string
	Extractor *string
	Stage     *string
	AgeMonths *float64
	Limit     int
}

// ProfileFilter narrows a profile lookup; nil fields are not filtered on
type ProfileFilter struct {
	Crop      *string
	Variety   *string
	State     *string
	City      *string
	Extractor *string
	Stage     *string
	Limit     int
}

// soilReferenceRepository implements ReferenceRepository
type soilReferenceRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewReferenceRepository creates a new soil reference repository
func NewReferenceRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ReferenceRepository {
	return &soilReferenceRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const referenceColumns = `id, nutrient, crop, variety, state, city, extractor, stage,
		       age_min_months, age_max_months, ideal_min, ideal_max, unit, source_note, updated_at`

const profileColumns = `id, crop, variety, state, city, extractor, stage, age_months,
		       ideal, source_note, notes, updated_at`

// whereBuilder accumulates equality filters with ? placeholders
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) eq(column string, value *string) {
	if value == nil {
		return
	}
	w.clauses = append(w.clauses, column+" = ?")
	w.args = append(w.args, *value)
}

func (w *whereBuilder) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// FindReferences returns matching rows, most recently updated first
func (r *soilReferenceRepository) FindReferences(ctx context.Context, filter ReferenceFilter) ([]*models.SoilReference, error) {
	var w whereBuilder
	w.add("nutrient = ?", filter.Nutrient)
	w.eq("crop", filter.Crop)
	w.eq("variety", filter.Variety)
	w.eq("state", filter.State)
	w.eq("city", filter.City)
	w.eq("extractor", filter.Extractor)
	w.eq("stage", filter.Stage)

	// Rows with an open age bound match any age on that side
	if filter.AgeMonths != nil {
		w.add("(age_min_months IS NULL OR age_min_months <= ?)", *filter.AgeMonths)
		w.add("(age_max_months IS NULL OR age_max_months >= ?)", *filter.AgeMonths)
	}

	query := "SELECT " + referenceColumns + " FROM soil_references" + w.sql() +
		" ORDER BY updated_at DESC, id"
	args := w.args

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var refs []*models.SoilReference
	err := r.db.SelectContext(ctx, "find_references", &refs, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find references: %w", err)
	}

	return refs, nil
}

// GetReference retrieves a reference row by ID
func (r *soilReferenceRepository) GetReference(ctx context.Context, id int64) (*models.SoilReference, error) {
	query := r.db.Rebind("SELECT " + referenceColumns + " FROM soil_references WHERE id = ?")

	var ref models.SoilReference
	err := r.db.GetContext(ctx, "get_reference", &ref, query, id)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "soil_reference",
			ID:       strconv.FormatInt(id, 10),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}

	return &ref, nil
}

// ListReferences retrieves reference rows with pagination
func (r *soilReferenceRepository) ListReferences(ctx context.Context, limit, offset int) ([]*models.SoilReference, error) {
	query := r.db.Rebind("SELECT " + referenceColumns + ` FROM soil_references
		ORDER BY nutrient, crop, id
		LIMIT ? OFFSET ?`)

	var refs []*models.SoilReference
	err := r.db.SelectContext(ctx, "list_references", &refs, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	return refs, nil
}

const insertReference = `
		INSERT INTO soil_references (
			nutrient, crop, variety, state, city, extractor, stage,
			age_min_months, age_max_months, ideal_min, ideal_max, unit, source_note,
			updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

func referenceArgs(ref *models.SoilReference) []interface{} {
	return []interface{}{
		ref.Nutrient,
		ref.Crop,
		ref.Variety,
		ref.State,
		ref.City,
		ref.Extractor,
		ref.Stage,
		ref.AgeMinMonths,
		ref.AgeMaxMonths,
		ref.IdealMin,
		ref.IdealMax,
		ref.Unit,
		ref.SourceNote,
		ref.UpdatedAt,
	}
}

func prepareReference(ref *models.SoilReference) error {
	if err := (models.IdealRange{Min: ref.IdealMin, Max: ref.IdealMax}).Validate(); err != nil {
		return err
	}
	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// CreateReference inserts a reference row and sets its ID
func (r *soilReferenceRepository) CreateReference(ctx context.Context, ref *models.SoilReference) error {
	if err := prepareReference(ref); err != nil {
		return err
	}

	query := r.db.Rebind(insertReference + " RETURNING id")
	err := r.db.DB().QueryRowxContext(ctx, query, referenceArgs(ref)...).Scan(&ref.ID)
	if err != nil {
		r.metrics.RecordDBError("insert_error")
		return fmt.Errorf("failed to create reference: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_REFERENCE] Reference created", logging.Fields{
		"id":       ref.ID,
		"nutrient": ref.Nutrient,
	})

	return nil
}

// CreateReferencesBatch inserts multiple reference rows in a single transaction
func (r *soilReferenceRepository) CreateReferencesBatch(ctx context.Context, refs []*models.SoilReference) error {
	if len(refs) == 0 {
		return nil
	}

	for _, ref := range refs {
		if err := prepareReference(ref); err != nil {
			return err
		}
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.ImportBatchSize.Observe(float64(len(refs)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(refs),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertReference))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ref := range refs {
		if _, err := stmt.ExecContext(ctx, referenceArgs(ref)...); err != nil {
			return fmt.Errorf("failed to insert reference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.ImportRecordsTotal.Add(float64(len(refs)))

	return nil
}

// FindProfiles returns matching crop profiles, most recently updated first
func (r *soilReferenceRepository) FindProfiles(ctx context.Context, filter ProfileFilter) ([]*models.SoilProfile, error) {
	var w whereBuilder
	w.eq("crop", filter.Crop)
	w.eq("variety", filter.Variety)
	w.eq("state", filter.State)
	w.eq("city", filter.City)
	w.eq("extractor", filter.Extractor)
	w.eq("stage", filter.Stage)

	query := "SELECT " + profileColumns + " FROM soil_profiles" + w.sql() +
		" ORDER BY updated_at DESC, id"
	args := w.args

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var profiles []*models.SoilProfile
	err := r.db.SelectContext(ctx, "find_profiles", &profiles, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find profiles: %w", err)
	}

	for _, p := range profiles {
		p.Source = models.SourceRemote
	}

	return profiles, nil
}

// CreateProfile inserts a crop profile and sets its ID
func (r *soilReferenceRepository) CreateProfile(ctx context.Context, profile *models.SoilProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO soil_profiles (
			crop, variety, state, city, extractor, stage, age_months,
			ideal, source_note, notes, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.DB().QueryRowxContext(ctx, query,
		profile.Crop,
		profile.Variety,
		profile.State,
		profile.City,
		profile.Extractor,
		profile.Stage,
		profile.AgeMonths,
		profile.Ideal,
		profile.SourceNote,
		profile.Notes,
		profile.UpdatedAt,
	).Scan(&profile.ID)

	if err != nil {
		r.metrics.RecordDBError("insert_error")
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// HealthCheck performs a repository health check
func (r *soilReferenceRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
