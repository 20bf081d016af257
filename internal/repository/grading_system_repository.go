package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

// GradingSystemRepository persists grading systems and their bands.
type GradingSystemRepository struct {
	db *sqlx.DB
}

// NewGradingSystemRepository creates the repository.
func NewGradingSystemRepository(db *sqlx.DB) *GradingSystemRepository {
	return &GradingSystemRepository{db: db}
}

// Create inserts a grading system with its scales.
func (r *GradingSystemRepository) Create(ctx context.Context, system *models.GradingSystem) error {
	if system.ID == "" {
		system.ID = uuid.NewString()
	}
	system.CreatedAt = time.Now().UTC()
	conn := database.Conn(ctx, r.db)
	const insertSystem = `INSERT INTO grading_systems (id, academic_year_id, name, is_default, active, created_at)
        VALUES (:id, :academic_year_id, :name, :is_default, :active, :created_at)`
	if _, err := conn.NamedExecContext(ctx, insertSystem, system); err != nil {
		return fmt.Errorf("create grading system: %w", err)
	}
	const insertScale = `INSERT INTO grade_scales (id, grading_system_id, grade_name, min_percentage, max_percentage, grade_point, color)
        VALUES (:id, :grading_system_id, :grade_name, :min_percentage, :max_percentage, :grade_point, :color)`
	for i := range system.Scales {
		scale := &system.Scales[i]
		if scale.ID == "" {
			scale.ID = uuid.NewString()
		}
		scale.GradingSystemID = system.ID
		if _, err := conn.NamedExecContext(ctx, insertScale, scale); err != nil {
			return fmt.Errorf("create grade scale: %w", err)
		}
	}
	return nil
}

// FindByID returns a grading system with its scales.
func (r *GradingSystemRepository) FindByID(ctx context.Context, id string) (*models.GradingSystem, error) {
	const query = `SELECT id, academic_year_id, name, is_default, active, created_at FROM grading_systems WHERE id = $1`
	var system models.GradingSystem
	if err := database.Conn(ctx, r.db).GetContext(ctx, &system, query, id); err != nil {
		return nil, err
	}
	if err := r.loadScales(ctx, &system); err != nil {
		return nil, err
	}
	return &system, nil
}

// FindDefault returns the active default grading system of an academic year.
func (r *GradingSystemRepository) FindDefault(ctx context.Context, academicYearID string) (*models.GradingSystem, error) {
	const query = `SELECT id, academic_year_id, name, is_default, active, created_at FROM grading_systems
        WHERE academic_year_id = $1 AND is_default = TRUE AND active = TRUE LIMIT 1`
	var system models.GradingSystem
	if err := database.Conn(ctx, r.db).GetContext(ctx, &system, query, academicYearID); err != nil {
		return nil, err
	}
	if err := r.loadScales(ctx, &system); err != nil {
		return nil, err
	}
	return &system, nil
}

// List returns the grading systems of an academic year, or every system when the year is empty.
func (r *GradingSystemRepository) List(ctx context.Context, academicYearID string) ([]models.GradingSystem, error) {
	query := `SELECT id, academic_year_id, name, is_default, active, created_at FROM grading_systems`
	var args []interface{}
	if academicYearID != "" {
		query += ` WHERE academic_year_id = $1`
		args = append(args, academicYearID)
	}
	query += ` ORDER BY academic_year_id, is_default DESC, name`
	var systems []models.GradingSystem
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &systems, query, args...); err != nil {
		return nil, fmt.Errorf("list grading systems: %w", err)
	}
	for i := range systems {
		if err := r.loadScales(ctx, &systems[i]); err != nil {
			return nil, err
		}
	}
	return systems, nil
}

// SetDefault makes id the only default system of its academic year.
func (r *GradingSystemRepository) SetDefault(ctx context.Context, academicYearID, id string) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx, `UPDATE grading_systems SET is_default = FALSE WHERE academic_year_id = $1 AND is_default = TRUE AND id <> $2`, academicYearID, id); err != nil {
		return fmt.Errorf("clear default grading system: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `UPDATE grading_systems SET is_default = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("set default grading system: %w", err)
	}
	return nil
}

func (r *GradingSystemRepository) loadScales(ctx context.Context, system *models.GradingSystem) error {
	const query = `SELECT id, grading_system_id, grade_name, min_percentage, max_percentage, grade_point, color
        FROM grade_scales WHERE grading_system_id = $1 ORDER BY min_percentage`
	var scales []models.GradeScale
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &scales, query, system.ID); err != nil {
		return fmt.Errorf("load grade scales: %w", err)
	}
	system.Scales = scales
	return nil
}
