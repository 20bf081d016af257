package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

// ClassRepository reads class records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository instantiates a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade, homeroom_teacher_id FROM classes WHERE id = $1`
	var class models.Class
	if err := database.Conn(ctx, r.db).GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListWithEnrollments returns classes that have active enrollments in the term.
func (r *ClassRepository) ListWithEnrollments(ctx context.Context, termID string) ([]models.Class, error) {
	const query = `SELECT DISTINCT c.id, c.name, c.grade, c.homeroom_teacher_id
FROM classes c
JOIN enrollments e ON e.class_id = c.id
WHERE e.term_id = $1 AND e.status = $2
ORDER BY c.grade, c.name`
	var classes []models.Class
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &classes, query, termID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list classes for term: %w", err)
	}
	return classes, nil
}
