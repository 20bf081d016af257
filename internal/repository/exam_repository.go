package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
)

const examColumns = `id, name, exam_type_id, academic_year_id, term_id, start_date, end_date, status, published,
        total_students, completed_count, instructions, created_by, created_at, updated_at`

// ExamRepository persists exams and exam types.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates a new exam repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// FindExamType returns an exam type by id.
func (r *ExamRepository) FindExamType(ctx context.Context, id string) (*models.ExamType, error) {
	const query = `SELECT id, name, contribution_percentage, is_term_based, frequency, is_online, duration_minutes, max_attempts, active, created_at
        FROM exam_types WHERE id = $1`
	var examType models.ExamType
	if err := database.Conn(ctx, r.db).GetContext(ctx, &examType, query, id); err != nil {
		return nil, err
	}
	return &examType, nil
}

// TermContributionTotal sums the contributions of distinct term-based exam types used by live exams in a term.
func (r *ExamRepository) TermContributionTotal(ctx context.Context, termID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(et.contribution_percentage), 0)
        FROM exam_types et
        WHERE et.is_term_based = TRUE AND et.id IN (
            SELECT DISTINCT e.exam_type_id FROM exams e WHERE e.term_id = $1 AND e.status <> $2
        )`
	var total float64
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, query, termID, models.ExamStatusCancelled); err != nil {
		return 0, fmt.Errorf("term contribution total: %w", err)
	}
	return total, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, name, exam_type_id, academic_year_id, term_id, start_date, end_date, status, published,
        total_students, completed_count, instructions, created_by, created_at, updated_at)
        VALUES (:id, :name, :exam_type_id, :academic_year_id, :term_id, :start_date, :end_date, :status, :published,
        :total_students, :completed_count, :instructions, :created_by, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update persists mutable exam definition fields.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exams SET name = :name, exam_type_id = :exam_type_id, start_date = :start_date, end_date = :end_date,
        instructions = :instructions, updated_at = :updated_at WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// FindByID returns an exam by id.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	var exam models.Exam
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindForUpdate returns an exam holding a row lock.
func (r *ExamRepository) FindForUpdate(ctx context.Context, id string) (*models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1 FOR UPDATE`
	var exam models.Exam
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// List returns exams matching the filter with the total count.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	var conditions []string
	var args []interface{}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	where := "WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	_, size, offset := models.Page(filter.Page, filter.PageSize, 100)
	query := fmt.Sprintf("SELECT %s FROM exams %s ORDER BY start_date DESC, name LIMIT %d OFFSET %d", examColumns, where, size, offset)

	conn := database.Conn(ctx, r.db)
	var exams []models.Exam
	if err := conn.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	var total int
	if err := conn.GetContext(ctx, &total, "SELECT COUNT(*) FROM exams "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// UpdateStatus changes the lifecycle status and publication flag.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id string, status models.ExamStatus, published bool) error {
	const query = `UPDATE exams SET status = $1, published = $2, updated_at = $3 WHERE id = $4`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, status, published, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update exam status: %w", err)
	}
	return nil
}

// HasResults reports whether any result exists for the exam.
func (r *ExamRepository) HasResults(ctx context.Context, examID string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM student_exam_results r
        JOIN exam_schedules s ON s.id = r.exam_schedule_id
        WHERE s.exam_id = $1)`
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, query, examID); err != nil {
		return false, fmt.Errorf("check exam results: %w", err)
	}
	return exists, nil
}

// ExamProgress counts the exam's schedules and enrolled students.
type ExamProgress struct {
	TotalSchedules     int `db:"total_schedules"`
	CompletedSchedules int `db:"completed_schedules"`
	TotalStudents      int `db:"total_students"`
}

// Progress returns schedule completion counts and the number of distinct students in scheduled classes.
func (r *ExamRepository) Progress(ctx context.Context, examID string) (ExamProgress, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM exam_schedules WHERE exam_id = $1 AND is_active = TRUE) AS total_schedules,
        (SELECT COUNT(*) FROM exam_schedules WHERE exam_id = $1 AND is_active = TRUE AND is_completed = TRUE) AS completed_schedules,
        (SELECT COUNT(DISTINCT en.student_id)
            FROM exam_schedules s
            JOIN exams ex ON ex.id = s.exam_id
            JOIN enrollments en ON en.class_id = s.class_id AND en.term_id = ex.term_id AND en.status = $2
            WHERE s.exam_id = $1 AND s.is_active = TRUE) AS total_students`
	var progress ExamProgress
	if err := database.Conn(ctx, r.db).GetContext(ctx, &progress, query, examID, models.EnrollmentStatusActive); err != nil {
		return ExamProgress{}, fmt.Errorf("exam progress: %w", err)
	}
	return progress, nil
}

// UpdateProgress stores the student and completion counters.
func (r *ExamRepository) UpdateProgress(ctx context.Context, examID string, totalStudents, completedCount int) error {
	const query = `UPDATE exams SET total_students = $1, completed_count = $2, updated_at = $3 WHERE id = $4`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, totalStudents, completedCount, time.Now().UTC(), examID); err != nil {
		return fmt.Errorf("update exam progress: %w", err)
	}
	return nil
}
