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

const attemptColumns = `a.id, a.student_id, a.online_exam_id, a.attempt_number, a.start_time, a.submit_time, a.last_saved_at,
        a.responses, a.snapshot, a.breakdown, a.auto_graded_marks, a.manual_graded_marks, a.marks_obtained, a.total_marks,
        a.status, a.is_graded, a.violation_count, a.created_at, a.updated_at`

// AttemptRepository persists online exam attempts.
type AttemptRepository struct {
	db *sqlx.DB
}

// NewAttemptRepository creates the repository.
func NewAttemptRepository(db *sqlx.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create inserts an attempt. A second live attempt for the same student and exam
// trips the partial unique index and surfaces as a unique violation.
func (r *AttemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	const query = `INSERT INTO online_exam_attempts (id, student_id, online_exam_id, attempt_number, start_time, submit_time,
        last_saved_at, responses, snapshot, breakdown, auto_graded_marks, manual_graded_marks, marks_obtained, total_marks,
        status, is_graded, violation_count, created_at, updated_at)
        VALUES (:id, :student_id, :online_exam_id, :attempt_number, :start_time, :submit_time, :last_saved_at, :responses,
        :snapshot, :breakdown, :auto_graded_marks, :manual_graded_marks, :marks_obtained, :total_marks, :status, :is_graded,
        :violation_count, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// FindByID returns an attempt.
func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := database.Conn(ctx, r.db).GetContext(ctx, &attempt, `SELECT `+attemptColumns+` FROM online_exam_attempts a WHERE a.id = $1`, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindForUpdate returns an attempt holding its row lock until the transaction ends.
func (r *AttemptRepository) FindForUpdate(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	query := `SELECT ` + attemptColumns + ` FROM online_exam_attempts a WHERE a.id = $1 FOR UPDATE`
	if err := database.Conn(ctx, r.db).GetContext(ctx, &attempt, query, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindLiveForUpdate locks the student's live attempt for an exam. It returns nil when none exists.
func (r *AttemptRepository) FindLiveForUpdate(ctx context.Context, studentID, onlineExamID string) (*models.Attempt, error) {
	var attempt models.Attempt
	query := `SELECT ` + attemptColumns + ` FROM online_exam_attempts a
        WHERE a.student_id = $1 AND a.online_exam_id = $2 AND a.status IN ('STARTED', 'IN_PROGRESS')
        FOR UPDATE`
	if err := database.Conn(ctx, r.db).GetContext(ctx, &attempt, query, studentID, onlineExamID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find live attempt: %w", err)
	}
	return &attempt, nil
}

// CountByStudentExam counts every attempt of a student on an exam, void ones included.
func (r *AttemptRepository) CountByStudentExam(ctx context.Context, studentID, onlineExamID string) (int, error) {
	const query = `SELECT COUNT(*) FROM online_exam_attempts WHERE student_id = $1 AND online_exam_id = $2`
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, studentID, onlineExamID); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// Update writes every mutable column of an attempt.
func (r *AttemptRepository) Update(ctx context.Context, attempt *models.Attempt) error {
	attempt.UpdatedAt = time.Now().UTC()
	const query = `UPDATE online_exam_attempts SET submit_time = :submit_time, last_saved_at = :last_saved_at,
        responses = :responses, breakdown = :breakdown, auto_graded_marks = :auto_graded_marks,
        manual_graded_marks = :manual_graded_marks, marks_obtained = :marks_obtained, total_marks = :total_marks,
        status = :status, is_graded = :is_graded, violation_count = :violation_count, updated_at = :updated_at
        WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	return nil
}

// ListStale returns ids of live attempts whose time limit elapsed before now.
func (r *AttemptRepository) ListStale(ctx context.Context, now time.Time) ([]string, error) {
	const query = `SELECT a.id FROM online_exam_attempts a
        JOIN online_exams o ON o.id = a.online_exam_id
        WHERE a.status IN ('STARTED', 'IN_PROGRESS')
          AND a.start_time + make_interval(mins => o.time_limit_minutes) < $1
        ORDER BY a.start_time`
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("list stale attempts: %w", err)
	}
	return ids, nil
}

// ListAwaitingGrade returns ids of submitted or timed out attempts that are not graded yet.
func (r *AttemptRepository) ListAwaitingGrade(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM online_exam_attempts WHERE status IN ('SUBMITTED', 'TIMED_OUT') ORDER BY submit_time`
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list attempts awaiting grade: %w", err)
	}
	return ids, nil
}

// BestGraded returns the student's highest scoring graded attempt, or nil when none remain.
func (r *AttemptRepository) BestGraded(ctx context.Context, studentID, onlineExamID string) (*models.Attempt, error) {
	var attempt models.Attempt
	query := `SELECT ` + attemptColumns + ` FROM online_exam_attempts a
        WHERE a.student_id = $1 AND a.online_exam_id = $2 AND a.status = 'GRADED'
        ORDER BY a.marks_obtained DESC, a.attempt_number ASC LIMIT 1`
	if err := database.Conn(ctx, r.db).GetContext(ctx, &attempt, query, studentID, onlineExamID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find best attempt: %w", err)
	}
	return &attempt, nil
}
