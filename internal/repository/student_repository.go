package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

// StudentRepository reads students and their class enrollments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, nis, full_name, active, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := database.Conn(ctx, r.db).GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

const classMembersQuery = `SELECT s.id AS student_id, s.nis, s.full_name, e.class_id, e.id AS enrollment_id
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.term_id = $2 AND e.status = $3 AND s.active = TRUE
ORDER BY s.nis`

// ListClassMembers returns active students enrolled in a class for a term.
func (r *StudentRepository) ListClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error) {
	var members []models.ClassMember
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &members, classMembersQuery, classID, termID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list class members: %w", err)
	}
	return members, nil
}

// LockClassMembers returns the class members holding a shared lock on their enrollments.
func (r *StudentRepository) LockClassMembers(ctx context.Context, classID, termID string) ([]models.ClassMember, error) {
	var members []models.ClassMember
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &members, classMembersQuery+" FOR SHARE OF e", classID, termID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("lock class members: %w", err)
	}
	return members, nil
}

// CurrentClassID returns the class a student is actively enrolled in for a term.
func (r *StudentRepository) CurrentClassID(ctx context.Context, studentID, termID string) (string, error) {
	const query = `SELECT class_id FROM enrollments WHERE student_id = $1 AND term_id = $2 AND status = $3 LIMIT 1`
	var classID string
	if err := database.Conn(ctx, r.db).GetContext(ctx, &classID, query, studentID, termID, models.EnrollmentStatusActive); err != nil {
		return "", err
	}
	return classID, nil
}
